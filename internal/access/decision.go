package access

import (
	"context"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/monitoring"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Engine answers access decisions for a (resource, requester) pair.
//
// The decision is a two-state machine with initial state DENIED: only the
// chronologically latest grant event for the pair matters. Owners and admins
// are allowed unconditionally.
type Engine struct {
	store   store.Store
	cache   *DecisionCache
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewEngine creates a decision engine. cache may be nil.
func NewEngine(st store.Store, cache *DecisionCache, log *logger.Logger, metrics *monitoring.MetricsCollector) *Engine {
	return &Engine{store: st, cache: cache, logger: log, metrics: metrics}
}

// CanAccess reports whether the requester may read the resource.
func (e *Engine) CanAccess(ctx context.Context, resource *types.Resource, requesterID string, requesterRole types.Role) (bool, error) {
	allowed, err := e.decide(ctx, resource, requesterID, requesterRole)
	if err != nil {
		return false, err
	}

	if e.metrics != nil {
		e.metrics.RecordAccessDecision(allowed)
	}
	return allowed, nil
}

func (e *Engine) decide(ctx context.Context, resource *types.Resource, requesterID string, requesterRole types.Role) (bool, error) {
	if resource.OwnerID == requesterID || requesterRole == types.RoleAdmin {
		return true, nil
	}

	if kind, ok := e.cache.GetKind(ctx, resource.ResourceID, requesterID); ok {
		return kind == types.GrantKindGrant, nil
	}

	latest, err := e.store.LatestGrantEvent(ctx, resource.ResourceID, requesterID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		// No transition has ever been recorded for the pair.
		return false, nil
	}

	e.cache.SetKind(ctx, resource.ResourceID, requesterID, latest.Kind)
	return latest.Kind == types.GrantKindGrant, nil
}
