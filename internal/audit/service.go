package audit

import (
	"context"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

const defaultTrailLimit = 100

// Service answers audit trail queries.
type Service struct {
	store store.Store
}

// NewService creates an audit query service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// List returns trail entries matching the filter, newest first. Only admins
// and auditors may read the trail.
func (s *Service) List(ctx context.Context, requesterRole types.Role, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	if !types.RoleIn(requesterRole, types.AuditReaderRoles) {
		return nil, types.NewAuthError(types.ErrCodeForbidden, "Role is not permitted to read the audit trail")
	}

	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = defaultTrailLimit
	}

	entries, err := s.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*types.AuditEntry{}
	}
	return entries, nil
}
