package types

import "time"

// Resource represents an off-chain record of an encrypted medical document,
// anchored to the ledger once registration confirms.
type Resource struct {
	ResourceID     string            `json:"resource_id" db:"resource_id"`
	OwnerID        string            `json:"owner_id" db:"owner_id"`
	ContentAddress string            `json:"content_address" db:"content_address"`
	CipherDigest   string            `json:"cipher_digest" db:"cipher_digest"`
	Metadata       map[string]string `json:"metadata" db:"metadata"`
	TxRef          string            `json:"tx_ref,omitempty" db:"tx_ref"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

// Confirmed reports whether the ledger has acknowledged the registration.
func (r *Resource) Confirmed() bool {
	return r.TxRef != ""
}

// GrantKind distinguishes grant from revoke transitions.
type GrantKind string

const (
	GrantKindGrant  GrantKind = "GRANT"
	GrantKindRevoke GrantKind = "REVOKE"
)

// AccessGrantEvent is one authorization state transition for a
// (resource, grantee) pair. The chronologically latest event for a pair is
// authoritative for access decisions.
type AccessGrantEvent struct {
	ID         string    `json:"id" db:"id"`
	ResourceID string    `json:"resource_id" db:"resource_id"`
	Grantee    string    `json:"grantee" db:"grantee"`
	Actor      string    `json:"actor" db:"actor"`
	Kind       GrantKind `json:"kind" db:"kind"`
	TxRef      string    `json:"tx_ref" db:"tx_ref"`
	EventKey   string    `json:"event_key" db:"event_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AuditEntry is one append-only row in the audit trail. EventKey is set for
// entries that correspond to a ledger event; both the synchronous command path
// and the audit mirror derive the same key, so the row is written once no
// matter which writer gets there first.
type AuditEntry struct {
	ID        string                 `json:"id" db:"id"`
	Actor     string                 `json:"actor" db:"actor"`
	Timestamp time.Time              `json:"ts" db:"ts"`
	Type      string                 `json:"type" db:"type"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"`
	EventKey  string                 `json:"event_key,omitempty" db:"event_key"`
}

// AuditFilter narrows an audit trail query.
type AuditFilter struct {
	Actor      string
	Type       string
	ResourceID string
	Since      time.Time
	Limit      int
}

// Audit entry types written by the command path and the mirror.
const (
	AuditRecordCreate = "record:create"
	AuditRecordFetch  = "record:fetch"
	AuditAccessGrant  = "access:grant"
	AuditAccessRevoke = "access:revoke"
)

// EventKind identifies the four ledger event kinds the mirror consumes.
type EventKind string

const (
	EventRegistered EventKind = "registered"
	EventGranted    EventKind = "granted"
	EventRevoked    EventKind = "revoked"
	EventFetched    EventKind = "fetched"
)

// LedgerEvent is one event observed on the registry contract. LogIndex is the
// bridge's monotonically increasing stream ordinal, used for resume.
type LedgerEvent struct {
	Kind       EventKind `json:"kind"`
	ResourceID string    `json:"resource_id"`
	Actor      string    `json:"actor"`
	Grantee    string    `json:"grantee,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TxRef      string    `json:"tx_ref"`
	LogIndex   uint64    `json:"log_index"`
}

// EventKey is the canonical idempotency key shared by both writers. The
// registry emits at most one event of a given kind per transaction, so the
// pair is unique and derivable without knowing the log index.
func EventKey(kind EventKind, txRef string) string {
	return string(kind) + ":" + txRef
}

// Key returns the event's canonical idempotency key.
func (e *LedgerEvent) Key() string {
	return EventKey(e.Kind, e.TxRef)
}

// IngestRequest is the input to record ingestion.
type IngestRequest struct {
	OwnerID        string            `json:"owner_id"`
	Payload        []byte            `json:"payload"`
	ContentAddress string            `json:"content_address"`
	Metadata       map[string]string `json:"metadata"`
}

// IngestResult reports the persisted resource and whether the ledger
// confirmed it. A resource with Pending set is valid off-chain evidence that
// has not yet been anchored.
type IngestResult struct {
	Resource *Resource `json:"resource"`
	TxRef    string    `json:"tx_ref,omitempty"`
	Pending  bool      `json:"pending"`
}

// AccessCommand is a grant or revoke request.
type AccessCommand struct {
	ActorID      string    `json:"actor_id"`
	ActorRole    Role      `json:"actor_role"`
	ResourceID   string    `json:"resource_id"`
	Grantee      string    `json:"grantee"`
	Kind         GrantKind `json:"kind"`
	EncryptedKey string    `json:"encrypted_key,omitempty"`
}
