package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgresStore opens a pooled connection and verifies it.
func NewPostgresStore(cfg *config.PostgresConfig, log *logger.Logger) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, types.NewPersistenceError(types.ErrCodeStoreUnavailable, "failed to open database connection", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.NewPersistenceError(types.ErrCodeStoreUnavailable, "failed to ping database", err)
	}

	log.Info("Database connection established successfully")
	return &PostgresStore{db: db, logger: log}, nil
}

func persistErr(op string, err error) error {
	return types.NewPersistenceError(types.ErrCodeStoreUnavailable, fmt.Sprintf("%s failed", op), err)
}

const userColumns = "id, name, email, role, password_hash, human_verified, reset_token, reset_expires, created_at"

func scanUser(row *sql.Row) (*types.User, error) {
	var user types.User
	var resetExpires sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.HumanVerified,
		&user.ResetToken,
		&resetExpires,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, persistErr("user lookup", err)
	}
	if resetExpires.Valid {
		user.ResetExpires = resetExpires.Time
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by email, nil when absent.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	query := fmt.Sprintf("SELECT %s FROM medisecure_users WHERE email = $1", userColumns)
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// FindUserByID retrieves a user by ID, nil when absent.
func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*types.User, error) {
	query := fmt.Sprintf("SELECT %s FROM medisecure_users WHERE id = $1", userColumns)
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, user *types.User) error {
	query := `
		INSERT INTO medisecure_users (id, name, email, role, password_hash, human_verified, reset_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.HumanVerified,
		user.ResetToken,
		user.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return types.NewConflictError("EMAIL_EXISTS", "Email already registered")
		}
		return persistErr("user insert", err)
	}

	s.logger.WithFields(map[string]interface{}{"user_id": user.ID, "email": user.Email}).Info("User created")
	return nil
}

// UpdateUser applies a partial update and returns the updated user, nil when
// the user does not exist.
func (s *PostgresStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (*types.User, error) {
	setParts := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argIndex := 1

	add := func(column string, value interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.HumanVerified != nil {
		add("human_verified", *patch.HumanVerified)
	}
	if patch.ResetToken != nil {
		add("reset_token", *patch.ResetToken)
	}
	if patch.ResetExpires != nil {
		if patch.ResetExpires.IsZero() {
			add("reset_expires", nil)
		} else {
			add("reset_expires", *patch.ResetExpires)
		}
	}

	if len(setParts) == 0 {
		return s.FindUserByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE medisecure_users SET %s WHERE id = $%d",
		strings.Join(setParts, ", "), argIndex)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("user update", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistErr("user update", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return s.FindUserByID(ctx, id)
}

// ListUsers returns all users, newest first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*types.User, error) {
	query := fmt.Sprintf("SELECT %s FROM medisecure_users ORDER BY created_at DESC", userColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistErr("user list", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		var user types.User
		var resetExpires sql.NullTime
		err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.PasswordHash,
			&user.HumanVerified,
			&user.ResetToken,
			&resetExpires,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, persistErr("user scan", err)
		}
		if resetExpires.Valid {
			user.ResetExpires = resetExpires.Time
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("user list", err)
	}

	return users, nil
}

// FindResource retrieves a resource by its derived identifier, nil when absent.
func (s *PostgresStore) FindResource(ctx context.Context, resourceID string) (*types.Resource, error) {
	query := `
		SELECT resource_id, owner_id, content_address, cipher_digest, metadata, tx_ref, created_at
		FROM medisecure_records
		WHERE resource_id = $1`

	var resource types.Resource
	var metadata []byte

	err := s.db.QueryRowContext(ctx, query, resourceID).Scan(
		&resource.ResourceID,
		&resource.OwnerID,
		&resource.ContentAddress,
		&resource.CipherDigest,
		&metadata,
		&resource.TxRef,
		&resource.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, persistErr("resource lookup", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &resource.Metadata); err != nil {
			return nil, persistErr("resource metadata decode", err)
		}
	}

	return &resource, nil
}

// CreateResource inserts the tentative off-chain row. The cipher digest is
// written once here and never updated afterwards.
func (s *PostgresStore) CreateResource(ctx context.Context, resource *types.Resource) error {
	metadata, err := json.Marshal(resource.Metadata)
	if err != nil {
		return persistErr("resource metadata encode", err)
	}

	query := `
		INSERT INTO medisecure_records (resource_id, owner_id, content_address, cipher_digest, metadata, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		resource.ResourceID,
		resource.OwnerID,
		resource.ContentAddress,
		resource.CipherDigest,
		metadata,
		resource.TxRef,
		resource.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return types.NewConflictError("RESOURCE_EXISTS", "Resource already registered")
		}
		return persistErr("resource insert", err)
	}

	return nil
}

// UpdateResourceLedgerRef records ledger confirmation. Only tx_ref changes.
func (s *PostgresStore) UpdateResourceLedgerRef(ctx context.Context, resourceID, txRef string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE medisecure_records SET tx_ref = $2 WHERE resource_id = $1", resourceID, txRef)
	if err != nil {
		return persistErr("resource tx_ref update", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistErr("resource tx_ref update", err)
	}
	if affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "Resource not found")
	}

	return nil
}

// RecordGrantEvent upserts an authorization transition by event key.
func (s *PostgresStore) RecordGrantEvent(ctx context.Context, event *types.AccessGrantEvent) (bool, error) {
	query := `
		INSERT INTO medisecure_access (id, resource_id, grantee, actor, kind, tx_ref, event_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_key) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.ResourceID,
		event.Grantee,
		event.Actor,
		event.Kind,
		event.TxRef,
		event.EventKey,
		event.CreatedAt,
	)
	if err != nil {
		return false, persistErr("grant event insert", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistErr("grant event insert", err)
	}

	return affected > 0, nil
}

// LatestGrantEvent returns the chronologically newest transition for the
// (resource, grantee) pair, nil when no event exists.
func (s *PostgresStore) LatestGrantEvent(ctx context.Context, resourceID, grantee string) (*types.AccessGrantEvent, error) {
	query := `
		SELECT id, resource_id, grantee, actor, kind, tx_ref, event_key, created_at
		FROM medisecure_access
		WHERE resource_id = $1 AND grantee = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var event types.AccessGrantEvent
	err := s.db.QueryRowContext(ctx, query, resourceID, grantee).Scan(
		&event.ID,
		&event.ResourceID,
		&event.Grantee,
		&event.Actor,
		&event.Kind,
		&event.TxRef,
		&event.EventKey,
		&event.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, persistErr("grant event lookup", err)
	}

	return &event, nil
}

// AddAuditEntry appends to the trail, deduplicating on event key when set.
func (s *PostgresStore) AddAuditEntry(ctx context.Context, entry *types.AuditEntry) (bool, error) {
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return false, persistErr("audit meta encode", err)
	}

	query := `
		INSERT INTO medisecure_audit (id, actor, ts, type, message, meta, event_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Actor,
		entry.Timestamp,
		entry.Type,
		entry.Message,
		meta,
		entry.EventKey,
	)
	if err != nil {
		return false, persistErr("audit insert", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistErr("audit insert", err)
	}

	return affected > 0, nil
}

// ListAuditEntries returns trail rows matching the filter, newest first.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	query := `
		SELECT id, actor, ts, type, message, meta, event_key
		FROM medisecure_audit
		WHERE 1=1`

	args := []interface{}{}
	argIndex := 1

	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argIndex)
		args = append(args, filter.Actor)
		argIndex++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, filter.Type)
		argIndex++
	}
	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND meta->>'resource_id' = $%d", argIndex)
		args = append(args, filter.ResourceID)
		argIndex++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND ts >= $%d", argIndex)
		args = append(args, filter.Since)
		argIndex++
	}

	query += " ORDER BY ts DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("audit list", err)
	}
	defer rows.Close()

	var entries []*types.AuditEntry
	for rows.Next() {
		var entry types.AuditEntry
		var meta []byte
		err := rows.Scan(
			&entry.ID,
			&entry.Actor,
			&entry.Timestamp,
			&entry.Type,
			&entry.Message,
			&meta,
			&entry.EventKey,
		)
		if err != nil {
			return nil, persistErr("audit scan", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, persistErr("audit meta decode", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("audit list", err)
	}

	return entries, nil
}

// LedgerCursor returns the last applied event ordinal, zero if never set.
func (s *PostgresStore) LedgerCursor(ctx context.Context) (uint64, error) {
	var position int64
	err := s.db.QueryRowContext(ctx,
		"SELECT position FROM medisecure_ledger_cursor WHERE id = 1").Scan(&position)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, persistErr("cursor lookup", err)
	}
	return uint64(position), nil
}

// SetLedgerCursor persists the last applied event ordinal.
func (s *PostgresStore) SetLedgerCursor(ctx context.Context, position uint64) error {
	query := `
		INSERT INTO medisecure_ledger_cursor (id, position) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position`

	if _, err := s.db.ExecContext(ctx, query, int64(position)); err != nil {
		return persistErr("cursor update", err)
	}
	return nil
}

// Ping checks connection health.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistErr("ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
