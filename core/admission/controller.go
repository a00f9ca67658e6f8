// Package admission enforces the concurrency budget for training runs.
// A run may only start once it holds both a slot in its tenant's budget
// and a slot in the global budget.
package admission

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"train-orchestrator/core/trainerrors"
)

// Controller hands out run slots against a global limit and a per-tenant
// limit. Tenant budgets are created lazily on first use and every tenant
// shares the same limit.
type Controller struct {
	globalLimit int64
	tenantLimit int64

	global *semaphore.Weighted

	mu          sync.Mutex
	tenants     map[string]*tenantSlots
	globalInUse int64
	waiting     int
}

type tenantSlots struct {
	sem  *semaphore.Weighted
	held int64
}

// Stats is a point-in-time snapshot of slot occupancy.
type Stats struct {
	GlobalLimit int64
	GlobalInUse int64
	TenantLimit int64
	Waiting     int
	TenantInUse map[string]int64
}

// NewController validates the limits and builds a controller. Both limits
// must be at least 1.
func NewController(globalLimit, tenantLimit int64) (*Controller, error) {
	if globalLimit < 1 {
		return nil, &trainerrors.ErrInvalidArgument{
			Name:    "globalLimit",
			Value:   globalLimit,
			Message: "must be at least 1",
		}
	}
	if tenantLimit < 1 {
		return nil, &trainerrors.ErrInvalidArgument{
			Name:    "tenantLimit",
			Value:   tenantLimit,
			Message: "must be at least 1",
		}
	}
	return &Controller{
		globalLimit: globalLimit,
		tenantLimit: tenantLimit,
		global:      semaphore.NewWeighted(globalLimit),
		tenants:     make(map[string]*tenantSlots),
	}, nil
}

// Acquire blocks until tenantID holds both a tenant slot and a global slot,
// or until ctx is cancelled. The tenant slot is taken first so that a tenant
// already at its own limit does not tie up global capacity while it waits.
func (c *Controller) Acquire(ctx context.Context, tenantID string) error {
	ts := c.tenantFor(tenantID)

	c.mu.Lock()
	c.waiting++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.waiting--
		c.mu.Unlock()
	}()

	if err := ts.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := c.global.Acquire(ctx, 1); err != nil {
		ts.sem.Release(1)
		return err
	}

	c.mu.Lock()
	ts.held++
	c.globalInUse++
	c.mu.Unlock()
	return nil
}

// Release returns both slots held by tenantID. A release without a matching
// acquire is logged and ignored so a bookkeeping bug cannot free capacity
// that was never taken.
func (c *Controller) Release(tenantID string) {
	c.mu.Lock()
	ts, ok := c.tenants[tenantID]
	if !ok || ts.held == 0 {
		c.mu.Unlock()
		log.Errorf("Release without matching acquire for tenant %s", tenantID)
		return
	}
	ts.held--
	c.globalInUse--
	c.mu.Unlock()

	c.global.Release(1)
	ts.sem.Release(1)
}

// Stats reports current occupancy. Tenants with no held slots are omitted.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		GlobalLimit: c.globalLimit,
		GlobalInUse: c.globalInUse,
		TenantLimit: c.tenantLimit,
		Waiting:     c.waiting,
		TenantInUse: make(map[string]int64),
	}
	for id, ts := range c.tenants {
		if ts.held > 0 {
			stats.TenantInUse[id] = ts.held
		}
	}
	return stats
}

func (c *Controller) tenantFor(tenantID string) *tenantSlots {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.tenants[tenantID]
	if !ok {
		ts = &tenantSlots{sem: semaphore.NewWeighted(c.tenantLimit)}
		c.tenants[tenantID] = ts
	}
	return ts
}
