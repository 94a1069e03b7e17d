package tableapi

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"cafe-backend/internal/store"
)

// ServeFunc receives one candidate statement. fallback marks the last-resort
// wildcard select, which is unscoped and unshaped: treat its rows as
// best-effort only.
type ServeFunc func(sqlText string, params []any, fallback bool) error

// SelectCache keeps the per-table formatted select off the hot path while
// tolerating schema drift. Serving protocol per table:
//
//	cached plan -> on failure regenerate once and overwrite ->
//	on second failure serve SELECT * FROM <table> for this request only.
//
// The wildcard is never cached; the next request starts from the last good
// plan again. Generated plans depend on live column metadata that can drift
// from what the cache captured, so availability wins over shape fidelity.
type SelectCache struct {
	mu    sync.RWMutex
	store *store.Store
	log   *zap.Logger
	plans map[string]*SelectPlan
}

func NewSelectCache(s *store.Store, log *zap.Logger) *SelectCache {
	return &SelectCache{
		store: s,
		log:   log,
		plans: make(map[string]*SelectPlan),
	}
}

// Plan returns the cached plan for a table, generating and caching it on
// first use.
func (c *SelectCache) Plan(ctx context.Context, table string) (*SelectPlan, error) {
	c.mu.RLock()
	plan := c.plans[table]
	c.mu.RUnlock()
	if plan != nil {
		return plan, nil
	}
	return c.regenerate(ctx, table)
}

func (c *SelectCache) regenerate(ctx context.Context, table string) (*SelectPlan, error) {
	plan, err := FetchSelectPlan(ctx, c.store, table)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.plans[table] = plan
	c.mu.Unlock()
	return plan, nil
}

// Serve runs the three-tier serving protocol for one request.
func (c *SelectCache) Serve(ctx context.Context, table string, opts SelectOptions, serve ServeFunc) error {
	plan, err := c.Plan(ctx, table)
	if err == nil {
		sqlText, params := BuildSelect(c.store.Dialect, plan, opts)
		if err = serve(sqlText, params, false); err == nil {
			return nil
		}
	}

	c.log.Warn("formatted select failed, regenerating",
		zap.String("table", table), zap.Error(err))

	plan, regenErr := c.regenerate(ctx, table)
	if regenErr == nil {
		sqlText, params := BuildSelect(c.store.Dialect, plan, opts)
		if err = serve(sqlText, params, false); err == nil {
			return nil
		}
	} else {
		err = regenErr
	}

	c.log.Error("regenerated select failed too, serving wildcard; this will certainly break some things",
		zap.String("table", table), zap.Error(err))

	return serve(fmt.Sprintf("SELECT * FROM %s", SQLLiteral(table)), nil, true)
}
