package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Olowonjaye/MediSecure-Chain/internal/ledger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/monitoring"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// CommandService executes grant and revoke commands. The ledger call comes
// first and is fatal: if the chain rejects the transition, nothing is
// persisted locally.
type CommandService struct {
	store   store.Store
	ledger  ledger.Client
	cache   *DecisionCache
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewCommandService creates an access command service. cache may be nil.
func NewCommandService(st store.Store, lc ledger.Client, cache *DecisionCache, log *logger.Logger, metrics *monitoring.MetricsCollector) *CommandService {
	return &CommandService{store: st, ledger: lc, cache: cache, logger: log, metrics: metrics}
}

func eventKindFor(kind types.GrantKind) types.EventKind {
	if kind == types.GrantKindRevoke {
		return types.EventRevoked
	}
	return types.EventGranted
}

func auditTypeFor(kind types.GrantKind) string {
	if kind == types.GrantKindRevoke {
		return types.AuditAccessRevoke
	}
	return types.AuditAccessGrant
}

// Execute performs one grant or revoke transition and returns the ledger
// transaction reference.
func (s *CommandService) Execute(ctx context.Context, cmd *types.AccessCommand) (string, error) {
	if cmd.ResourceID == "" || cmd.Grantee == "" {
		return "", types.NewValidationError(types.ErrCodeInvalidInput, "resource and grantee are required", nil)
	}
	if cmd.Kind != types.GrantKindGrant && cmd.Kind != types.GrantKindRevoke {
		return "", types.NewValidationError(types.ErrCodeInvalidInput, "kind must be GRANT or REVOKE", nil)
	}
	if !types.RoleIn(cmd.ActorRole, types.AccessManagerRoles) {
		return "", types.NewAuthError(types.ErrCodeForbidden, "Role is not permitted to manage access")
	}

	resource, err := s.store.FindResource(ctx, cmd.ResourceID)
	if err != nil {
		return "", err
	}
	if resource == nil {
		return "", types.NewNotFoundError(types.ErrCodeNotFound, "Record not found")
	}

	var txRef string
	switch cmd.Kind {
	case types.GrantKindGrant:
		txRef, err = s.ledger.Grant(ctx, cmd.ResourceID, cmd.Grantee, cmd.EncryptedKey)
	case types.GrantKindRevoke:
		txRef, err = s.ledger.Revoke(ctx, cmd.ResourceID, cmd.Grantee)
	}
	if err != nil {
		return "", err
	}

	event := &types.AccessGrantEvent{
		ID:         uuid.New().String(),
		ResourceID: cmd.ResourceID,
		Grantee:    cmd.Grantee,
		Actor:      cmd.ActorID,
		Kind:       cmd.Kind,
		TxRef:      txRef,
		EventKey:   types.EventKey(eventKindFor(cmd.Kind), txRef),
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := s.store.RecordGrantEvent(ctx, event); err != nil {
		// The transition is already on the ledger; the mirror will apply it
		// on its next pass. The stale cache entry must not outlive this.
		s.cache.Invalidate(ctx, cmd.ResourceID, cmd.Grantee)
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"resource_id": cmd.ResourceID,
			"grantee":     cmd.Grantee,
			"tx_ref":      txRef,
		}).Error("Grant event persisted on ledger but not locally")
		return "", err
	}

	s.cache.Invalidate(ctx, cmd.ResourceID, cmd.Grantee)
	s.writeAudit(ctx, cmd, txRef)

	return txRef, nil
}

// writeAudit appends a trail entry for the transition, failures swallowed.
func (s *CommandService) writeAudit(ctx context.Context, cmd *types.AccessCommand, txRef string) {
	entryType := auditTypeFor(cmd.Kind)
	entry := &types.AuditEntry{
		ID:        uuid.New().String(),
		Actor:     cmd.ActorID,
		Timestamp: time.Now().UTC(),
		Type:      entryType,
		Message:   "Access " + string(cmd.Kind) + " for " + cmd.Grantee,
		Meta: map[string]interface{}{
			"resource_id": cmd.ResourceID,
			"grantee":     cmd.Grantee,
			"tx_ref":      txRef,
		},
		EventKey: types.EventKey(eventKindFor(cmd.Kind), txRef),
	}

	_, err := s.store.AddAuditEntry(ctx, entry)
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(entryType, err == nil)
	}
	if err != nil {
		s.logger.WithError(err).WithField("resource_id", cmd.ResourceID).Error("Audit write failed")
	}
}
