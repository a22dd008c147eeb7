package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// UserPatch describes a partial user update. Nil fields are left unchanged.
type UserPatch struct {
	Name          *string
	Role          *types.Role
	PasswordHash  *string
	HumanVerified *bool
	ResetToken    *string
	ResetExpires  *time.Time
}

// Store is the uniform persistence contract. Exactly one implementation is
// active per process, chosen from configuration at startup and injected into
// every dependent component.
//
// Lookups return (nil, nil) when the entity is absent; errors are reserved
// for transport and connection failures.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*types.User, error)
	FindUserByID(ctx context.Context, id string) (*types.User, error)
	CreateUser(ctx context.Context, user *types.User) error
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*types.User, error)
	ListUsers(ctx context.Context) ([]*types.User, error)

	FindResource(ctx context.Context, resourceID string) (*types.Resource, error)
	CreateResource(ctx context.Context, resource *types.Resource) error
	UpdateResourceLedgerRef(ctx context.Context, resourceID, txRef string) error

	// RecordGrantEvent persists an authorization transition, deduplicating on
	// the event key. It reports whether a new row was written.
	RecordGrantEvent(ctx context.Context, event *types.AccessGrantEvent) (bool, error)
	LatestGrantEvent(ctx context.Context, resourceID, grantee string) (*types.AccessGrantEvent, error)

	// AddAuditEntry appends to the audit trail, deduplicating on the event
	// key when one is set. It reports whether a new row was written.
	AddAuditEntry(ctx context.Context, entry *types.AuditEntry) (bool, error)
	ListAuditEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error)

	// LedgerCursor returns the stream ordinal of the last event the audit
	// mirror applied, zero when the mirror has never run.
	LedgerCursor(ctx context.Context) (uint64, error)
	SetLedgerCursor(ctx context.Context, position uint64) error

	Ping(ctx context.Context) error
	Close() error
}

// New builds the configured backend. The choice was validated during
// config.Load; an unknown backend here is a programming error.
func New(cfg *config.StoreConfig, log *logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return NewPostgresStore(&cfg.Postgres, log)
	case config.BackendLevelDB:
		return NewLevelDBStore(&cfg.LevelDB, log)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}
