package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Key prefixes. IDs are uuid or hex strings, so "|" never collides.
const (
	kvUserPrefix    = "user|"
	kvEmailPrefix   = "uidx|email|"
	kvResPrefix     = "res|"
	kvGrantPrefix   = "grant|"
	kvGrantKey      = "gkey|"
	kvAuditPrefix   = "audit|"
	kvAuditKey      = "akey|"
	kvCursorKey     = "cursor"
	kvTimestampFmt = "%020d"
)

// LevelDBStore implements Store on an embedded goleveldb database. It is the
// single-node stand-in for the relational backend; a process-wide mutex
// serializes conflicting writes per logical key.
type LevelDBStore struct {
	db     *leveldb.DB
	mu     sync.Mutex
	logger *logger.Logger
}

// NewLevelDBStore opens or creates the database at the configured path.
func NewLevelDBStore(cfg *config.LevelDBConfig, log *logger.Logger) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(cfg.Path, nil)
	if err != nil {
		return nil, types.NewPersistenceError(types.ErrCodeStoreUnavailable, "failed to open leveldb", err)
	}

	log.WithField("path", cfg.Path).Info("Embedded store opened")
	return &LevelDBStore{db: db, logger: log}, nil
}

func (s *LevelDBStore) get(key string, out interface{}) (bool, error) {
	data, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return false, nil
		}
		return false, persistErr("leveldb get", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, persistErr("leveldb decode", err)
	}
	return true, nil
}

func (s *LevelDBStore) put(batch *leveldb.Batch, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return persistErr("leveldb encode", err)
	}
	batch.Put([]byte(key), data)
	return nil
}

// FindUserByEmail retrieves a user via the email index, nil when absent.
func (s *LevelDBStore) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	var id string
	found, err := s.get(kvEmailPrefix+email, &id)
	if err != nil || !found {
		return nil, err
	}
	return s.FindUserByID(ctx, id)
}

// FindUserByID retrieves a user by ID, nil when absent.
func (s *LevelDBStore) FindUserByID(ctx context.Context, id string) (*types.User, error) {
	var user types.User
	found, err := s.get(kvUserPrefix+id, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user and its email index entry.
func (s *LevelDBStore) CreateUser(ctx context.Context, user *types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.db.Has([]byte(kvEmailPrefix+user.Email), nil)
	if err != nil {
		return persistErr("leveldb has", err)
	}
	if existing {
		return types.NewConflictError("EMAIL_EXISTS", "Email already registered")
	}

	batch := new(leveldb.Batch)
	if err := s.put(batch, kvUserPrefix+user.ID, user); err != nil {
		return err
	}
	if err := s.put(batch, kvEmailPrefix+user.Email, user.ID); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return persistErr("leveldb write", err)
	}

	s.logger.WithFields(map[string]interface{}{"user_id": user.ID, "email": user.Email}).Info("User created")
	return nil
}

// UpdateUser applies a partial update, nil when the user does not exist.
func (s *LevelDBStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user types.User
	found, err := s.get(kvUserPrefix+id, &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.HumanVerified != nil {
		user.HumanVerified = *patch.HumanVerified
	}
	if patch.ResetToken != nil {
		user.ResetToken = *patch.ResetToken
	}
	if patch.ResetExpires != nil {
		user.ResetExpires = *patch.ResetExpires
	}

	batch := new(leveldb.Batch)
	if err := s.put(batch, kvUserPrefix+id, &user); err != nil {
		return nil, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, persistErr("leveldb write", err)
	}

	return &user, nil
}

// ListUsers returns all users, newest first.
func (s *LevelDBStore) ListUsers(ctx context.Context) ([]*types.User, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(kvUserPrefix)), nil)
	defer iter.Release()

	var users []*types.User
	for iter.Next() {
		var user types.User
		if err := json.Unmarshal(iter.Value(), &user); err != nil {
			return nil, persistErr("leveldb decode", err)
		}
		users = append(users, &user)
	}
	if err := iter.Error(); err != nil {
		return nil, persistErr("leveldb iterate", err)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// FindResource retrieves a resource, nil when absent.
func (s *LevelDBStore) FindResource(ctx context.Context, resourceID string) (*types.Resource, error) {
	var resource types.Resource
	found, err := s.get(kvResPrefix+resourceID, &resource)
	if err != nil || !found {
		return nil, err
	}
	return &resource, nil
}

// CreateResource inserts the tentative off-chain row.
func (s *LevelDBStore) CreateResource(ctx context.Context, resource *types.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.db.Has([]byte(kvResPrefix+resource.ResourceID), nil)
	if err != nil {
		return persistErr("leveldb has", err)
	}
	if existing {
		return types.NewConflictError("RESOURCE_EXISTS", "Resource already registered")
	}

	batch := new(leveldb.Batch)
	if err := s.put(batch, kvResPrefix+resource.ResourceID, resource); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return persistErr("leveldb write", err)
	}
	return nil
}

// UpdateResourceLedgerRef records ledger confirmation. The cipher digest and
// every other field stay untouched.
func (s *LevelDBStore) UpdateResourceLedgerRef(ctx context.Context, resourceID, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resource types.Resource
	found, err := s.get(kvResPrefix+resourceID, &resource)
	if err != nil {
		return err
	}
	if !found {
		return types.NewNotFoundError(types.ErrCodeNotFound, "Resource not found")
	}

	resource.TxRef = txRef

	batch := new(leveldb.Batch)
	if err := s.put(batch, kvResPrefix+resourceID, &resource); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return persistErr("leveldb write", err)
	}
	return nil
}

func grantRowKey(event *types.AccessGrantEvent) string {
	return fmt.Sprintf("%s%s|%s|"+kvTimestampFmt+"|%s",
		kvGrantPrefix, event.ResourceID, event.Grantee, event.CreatedAt.UnixNano(), event.ID)
}

// RecordGrantEvent upserts an authorization transition by event key.
func (s *LevelDBStore) RecordGrantEvent(ctx context.Context, event *types.AccessGrantEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.db.Has([]byte(kvGrantKey+event.EventKey), nil)
	if err != nil {
		return false, persistErr("leveldb has", err)
	}
	if seen {
		return false, nil
	}

	batch := new(leveldb.Batch)
	if err := s.put(batch, grantRowKey(event), event); err != nil {
		return false, err
	}
	batch.Put([]byte(kvGrantKey+event.EventKey), []byte(event.ID))
	if err := s.db.Write(batch, nil); err != nil {
		return false, persistErr("leveldb write", err)
	}
	return true, nil
}

// LatestGrantEvent returns the newest transition for the pair, nil when none
// exists. Row keys embed the creation timestamp, so the last key in the
// prefix range is the latest event.
func (s *LevelDBStore) LatestGrantEvent(ctx context.Context, resourceID, grantee string) (*types.AccessGrantEvent, error) {
	prefix := fmt.Sprintf("%s%s|%s|", kvGrantPrefix, resourceID, grantee)
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, persistErr("leveldb iterate", err)
		}
		return nil, nil
	}

	var event types.AccessGrantEvent
	if err := json.Unmarshal(iter.Value(), &event); err != nil {
		return nil, persistErr("leveldb decode", err)
	}
	return &event, nil
}

// AddAuditEntry appends to the trail, deduplicating on event key when set.
func (s *LevelDBStore) AddAuditEntry(ctx context.Context, entry *types.AuditEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.EventKey != "" {
		seen, err := s.db.Has([]byte(kvAuditKey+entry.EventKey), nil)
		if err != nil {
			return false, persistErr("leveldb has", err)
		}
		if seen {
			return false, nil
		}
	}

	rowKey := fmt.Sprintf("%s"+kvTimestampFmt+"|%s", kvAuditPrefix, entry.Timestamp.UnixNano(), entry.ID)

	batch := new(leveldb.Batch)
	if err := s.put(batch, rowKey, entry); err != nil {
		return false, err
	}
	if entry.EventKey != "" {
		batch.Put([]byte(kvAuditKey+entry.EventKey), []byte(entry.ID))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, persistErr("leveldb write", err)
	}
	return true, nil
}

// ListAuditEntries returns trail rows matching the filter, newest first.
func (s *LevelDBStore) ListAuditEntries(ctx context.Context, filter types.AuditFilter) ([]*types.AuditEntry, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(kvAuditPrefix)), nil)
	defer iter.Release()

	var entries []*types.AuditEntry
	for ok := iter.Last(); ok; ok = iter.Prev() {
		var entry types.AuditEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, persistErr("leveldb decode", err)
		}

		if filter.Actor != "" && entry.Actor != filter.Actor {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.ResourceID != "" {
			rid, _ := entry.Meta["resource_id"].(string)
			if rid != filter.ResourceID {
				continue
			}
		}
		if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
			continue
		}

		entries = append(entries, &entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, persistErr("leveldb iterate", err)
	}

	return entries, nil
}

// LedgerCursor returns the last applied event ordinal, zero if never set.
func (s *LevelDBStore) LedgerCursor(ctx context.Context) (uint64, error) {
	data, err := s.db.Get([]byte(kvCursorKey), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return 0, nil
		}
		return 0, persistErr("leveldb get", err)
	}
	position, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, persistErr("cursor decode", err)
	}
	return position, nil
}

// SetLedgerCursor persists the last applied event ordinal.
func (s *LevelDBStore) SetLedgerCursor(ctx context.Context, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Put([]byte(kvCursorKey), []byte(strconv.FormatUint(position, 10)), nil); err != nil {
		return persistErr("leveldb put", err)
	}
	return nil
}

// Ping verifies the database handle is usable.
func (s *LevelDBStore) Ping(ctx context.Context) error {
	_, err := s.db.Has([]byte(kvCursorKey), nil)
	if err != nil {
		return persistErr("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
