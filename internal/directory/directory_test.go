package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"umrah-backend/internal/models"
)

func TestHTTPDirectory_ResolvesFullChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tenants/1/agents/100/referrer-chain" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"agent_id":100,"parent_id":200,"grandparent_id":300}`)
	}))
	defer server.Close()

	d := NewHTTPDirectory(server.URL)
	chain, err := d.ResolveReferrerChain(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ResolveReferrerChain failed: %v", err)
	}

	if chain[0] == nil || *chain[0] != 100 {
		t.Error("level 1 should be the agent itself")
	}
	if chain[1] == nil || *chain[1] != 200 {
		t.Error("level 2 should be the parent")
	}
	if chain[2] == nil || *chain[2] != 300 {
		t.Error("level 3 should be the grandparent")
	}
}

func TestHTTPDirectory_NullParentsStayNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"agent_id":100,"parent_id":null,"grandparent_id":null}`)
	}))
	defer server.Close()

	d := NewHTTPDirectory(server.URL)
	chain, err := d.ResolveReferrerChain(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ResolveReferrerChain failed: %v", err)
	}
	if chain[1] != nil || chain[2] != nil {
		t.Error("agents without referrers must have nil upper levels")
	}
}

func TestHTTPDirectory_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewHTTPDirectory(server.URL)
	if _, err := d.ResolveReferrerChain(context.Background(), 1, 404); err == nil {
		t.Error("non-200 responses must surface as errors")
	}
}

func TestStaticDirectory_WalksParentMap(t *testing.T) {
	d := NewStaticDirectory(map[int64]int64{100: 200, 200: 300})

	chain, err := d.ResolveReferrerChain(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ResolveReferrerChain failed: %v", err)
	}
	want := [3]int64{100, 200, 300}
	for i, id := range want {
		if chain[i] == nil || *chain[i] != id {
			t.Errorf("level %d = %v, want %d", i+1, chain[i], id)
		}
	}

	// Truncated chain: 200's parent exists, no grandparent.
	chain, err = d.ResolveReferrerChain(context.Background(), 1, 200)
	if err != nil {
		t.Fatalf("ResolveReferrerChain failed: %v", err)
	}
	if chain[1] == nil || *chain[1] != 300 {
		t.Error("parent should resolve")
	}
	if chain[2] != nil {
		t.Error("missing grandparent stays nil")
	}
}

func TestReferrerChain_AgentForLevel(t *testing.T) {
	var chain models.ReferrerChain
	agent := int64(100)
	chain[0] = &agent

	if got := chain.AgentForLevel(models.LevelDirect); got == nil || *got != 100 {
		t.Error("direct level should return the agent")
	}
	if chain.AgentForLevel(models.LevelParent) != nil {
		t.Error("absent parent returns nil")
	}
	if chain.AgentForLevel(0) != nil || chain.AgentForLevel(4) != nil {
		t.Error("out-of-range levels return nil")
	}
}
