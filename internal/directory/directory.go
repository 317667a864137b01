// Package directory resolves an agent's referral chain. The canonical record
// lives in a separate agency-directory service; this client only reads the
// fixed-depth parent links the commission split needs.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"umrah-backend/internal/models"
)

// HTTPDirectory resolves chains against the agency directory service.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type chainResponse struct {
	AgentID       int64  `json:"agent_id"`
	ParentID      *int64 `json:"parent_id"`
	GrandparentID *int64 `json:"grandparent_id"`
}

func (d *HTTPDirectory) ResolveReferrerChain(ctx context.Context, tenantID, agentID int64) (models.ReferrerChain, error) {
	var chain models.ReferrerChain

	url := fmt.Sprintf("%s/api/tenants/%d/agents/%d/referrer-chain", d.baseURL, tenantID, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return chain, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return chain, fmt.Errorf("referrer directory unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return chain, fmt.Errorf("referrer directory returned %d for agent %d", resp.StatusCode, agentID)
	}

	var body chainResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return chain, fmt.Errorf("referrer directory response malformed: %w", err)
	}

	direct := body.AgentID
	chain[0] = &direct
	chain[1] = body.ParentID
	chain[2] = body.GrandparentID
	return chain, nil
}

// StaticDirectory serves chains from a fixed map, keyed by agent id. Used in
// dev mode and tests; agents absent from the map have no referrers.
type StaticDirectory struct {
	parents map[int64]int64
}

func NewStaticDirectory(parents map[int64]int64) *StaticDirectory {
	return &StaticDirectory{parents: parents}
}

func (d *StaticDirectory) ResolveReferrerChain(_ context.Context, _ int64, agentID int64) (models.ReferrerChain, error) {
	var chain models.ReferrerChain
	direct := agentID
	chain[0] = &direct
	if parent, ok := d.parents[agentID]; ok {
		p := parent
		chain[1] = &p
		if grand, ok := d.parents[parent]; ok {
			g := grand
			chain[2] = &g
		}
	}
	return chain, nil
}
