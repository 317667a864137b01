package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"umrah-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const ruleTTL = 15 * time.Minute

var client *redis.Client

// Init initializes the Redis connection. Redis is optional: when it is
// unavailable the pipeline falls back to the database and runs without locks
// (safe because every job is idempotent, just less efficient).
func Init(addr, password string) error {
	if addr == "" {
		return fmt.Errorf("redis address not configured")
	}

	client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		client = nil
		return err
	}
	return nil
}

func ruleKey(tenantID int64) string {
	return fmt.Sprintf("commission_rule:%d", tenantID)
}

// GetCachedRule returns the tenant's active commission rule if cached.
func GetCachedRule(ctx context.Context, tenantID int64) (*models.CommissionRule, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, ruleKey(tenantID)).Bytes()
	if err != nil {
		return nil, false
	}
	var rule models.CommissionRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, false
	}
	return &rule, true
}

// CacheRule caches the tenant's active commission rule.
func CacheRule(ctx context.Context, rule *models.CommissionRule) {
	if client == nil {
		return
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return
	}
	client.Set(ctx, ruleKey(rule.TenantID), data, ruleTTL)
}

// InvalidateRule drops the cached rule after a rule update.
func InvalidateRule(ctx context.Context, tenantID int64) {
	if client == nil {
		return
	}
	client.Del(ctx, ruleKey(tenantID))
}

// AcquireRunLock takes a short-lived lock for a periodic run (payout batch,
// reminder scan) so overlapping workers don't duplicate effort. Returns a
// release func. With no Redis every caller gets the lock; the jobs themselves
// are idempotent.
func AcquireRunLock(ctx context.Context, name string, tenantID int64, ttl time.Duration) (release func(), ok bool) {
	if client == nil {
		return func() {}, true
	}
	key := fmt.Sprintf("run_lock:%s:%d", name, tenantID)
	acquired, err := client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		// A Redis hiccup degrades to the no-lock path, same as no Redis at
		// all. Only a held lock refuses the run.
		return func() {}, true
	}
	if !acquired {
		return nil, false
	}
	return func() {
		client.Del(context.Background(), key)
	}, true
}
