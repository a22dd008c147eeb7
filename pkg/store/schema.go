package store

import (
	"context"
	"fmt"
)

// CreateSchema creates the tables and indexes for the postgres backend.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	s.logger.Info("Creating database schema...")

	tables := []string{
		createUsersTable,
		createRecordsTable,
		createAccessTable,
		createAuditTable,
		createCursorTable,
	}

	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createRecordsIndexes,
		createAccessIndexes,
		createAuditIndexes,
	}

	for _, index := range indexes {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	s.logger.Info("Database schema created successfully")
	return nil
}

// SQL DDL statements for table creation
const (
	createUsersTable = `
		CREATE TABLE IF NOT EXISTS medisecure_users (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(200) NOT NULL DEFAULT '',
			email VARCHAR(320) UNIQUE NOT NULL,
			role VARCHAR(32) NOT NULL,
			password_hash TEXT NOT NULL,
			human_verified BOOLEAN NOT NULL DEFAULT FALSE,
			reset_token VARCHAR(64) NOT NULL DEFAULT '',
			reset_expires TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createRecordsTable = `
		CREATE TABLE IF NOT EXISTS medisecure_records (
			resource_id VARCHAR(128) PRIMARY KEY,
			owner_id VARCHAR(64) NOT NULL,
			content_address TEXT NOT NULL DEFAULT '',
			cipher_digest VARCHAR(128) NOT NULL,
			metadata JSONB,
			tx_ref VARCHAR(128) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createAccessTable = `
		CREATE TABLE IF NOT EXISTS medisecure_access (
			id VARCHAR(64) PRIMARY KEY,
			resource_id VARCHAR(128) NOT NULL,
			grantee VARCHAR(64) NOT NULL,
			actor VARCHAR(64) NOT NULL DEFAULT '',
			kind VARCHAR(16) NOT NULL,
			tx_ref VARCHAR(128) NOT NULL DEFAULT '',
			event_key VARCHAR(160) UNIQUE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createAuditTable = `
		CREATE TABLE IF NOT EXISTS medisecure_audit (
			id VARCHAR(64) PRIMARY KEY,
			actor VARCHAR(64) NOT NULL DEFAULT '',
			ts TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			type VARCHAR(64) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			meta JSONB,
			event_key VARCHAR(160) NOT NULL DEFAULT ''
		);`

	createCursorTable = `
		CREATE TABLE IF NOT EXISTS medisecure_ledger_cursor (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			position BIGINT NOT NULL
		);`
)

// SQL DDL statements for index creation
const (
	createRecordsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_records_owner_id ON medisecure_records(owner_id);
		CREATE INDEX IF NOT EXISTS idx_records_created_at ON medisecure_records(created_at);`

	createAccessIndexes = `
		CREATE INDEX IF NOT EXISTS idx_access_pair ON medisecure_access(resource_id, grantee, created_at DESC);`

	createAuditIndexes = `
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON medisecure_audit(actor);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON medisecure_audit(type);
		CREATE INDEX IF NOT EXISTS idx_audit_ts ON medisecure_audit(ts);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_event_key ON medisecure_audit(event_key) WHERE event_key <> '';`
)
