package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

func newTestStore(t *testing.T) *LevelDBStore {
	t.Helper()

	st, err := NewLevelDBStore(&config.LevelDBConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	}, logger.New("error"))
	require.NoError(t, err)

	t.Cleanup(func() { st.Close() })
	return st
}

func TestUserLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	missing, err := st.FindUserByEmail(ctx, "nobody@example.com")
	assert.NoError(t, err)
	assert.Nil(t, missing, "absence must not be an error")

	user := &types.User{
		ID:           "u1",
		Name:         "Dr. Amara",
		Email:        "amara@example.com",
		Role:         types.RoleDoctor,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateUser(ctx, user))

	dup := &types.User{ID: "u2", Email: "amara@example.com", Role: types.RoleNurse}
	err = st.CreateUser(ctx, dup)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindConflict))

	byEmail, err := st.FindUserByEmail(ctx, "amara@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u1", byEmail.ID)

	newRole := types.RoleAdmin
	updated, err := st.UpdateUser(ctx, "u1", UserPatch{Role: &newRole})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, types.RoleAdmin, updated.Role)
	assert.Equal(t, "hash", updated.PasswordHash, "untouched fields survive a patch")

	ghost, err := st.UpdateUser(ctx, "missing", UserPatch{Role: &newRole})
	assert.NoError(t, err)
	assert.Nil(t, ghost)

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestResourceLedgerRefOnlyTouchesTxRef(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	resource := &types.Resource{
		ResourceID:   "0xres1",
		OwnerID:      "u1",
		CipherDigest: "0xdigest",
		Metadata:     map[string]string{"kind": "lab-report"},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateResource(ctx, resource))

	err := st.CreateResource(ctx, &types.Resource{ResourceID: "0xres1", OwnerID: "u2"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindConflict))

	require.NoError(t, st.UpdateResourceLedgerRef(ctx, "0xres1", "0xtx9"))

	got, err := st.FindResource(ctx, "0xres1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0xtx9", got.TxRef)
	assert.Equal(t, "0xdigest", got.CipherDigest)
	assert.Equal(t, "lab-report", got.Metadata["kind"])

	err = st.UpdateResourceLedgerRef(ctx, "0xmissing", "0xtx")
	assert.True(t, types.IsKind(err, types.ErrKindNotFound))
}

func TestGrantEventDedupAndOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	grant := &types.AccessGrantEvent{
		ID:         "e1",
		ResourceID: "0xres",
		Grantee:    "u2",
		Actor:      "u1",
		Kind:       types.GrantKindGrant,
		TxRef:      "0xtx1",
		EventKey:   types.EventKey(types.EventGranted, "0xtx1"),
		CreatedAt:  base,
	}

	written, err := st.RecordGrantEvent(ctx, grant)
	require.NoError(t, err)
	assert.True(t, written)

	// Same key delivered again, e.g. by the mirror after the command path.
	replay := *grant
	replay.ID = "e1-replay"
	written, err = st.RecordGrantEvent(ctx, &replay)
	require.NoError(t, err)
	assert.False(t, written, "redelivery of the same event key writes nothing")

	revoke := &types.AccessGrantEvent{
		ID:         "e2",
		ResourceID: "0xres",
		Grantee:    "u2",
		Actor:      "u1",
		Kind:       types.GrantKindRevoke,
		TxRef:      "0xtx2",
		EventKey:   types.EventKey(types.EventRevoked, "0xtx2"),
		CreatedAt:  base.Add(time.Second),
	}
	written, err = st.RecordGrantEvent(ctx, revoke)
	require.NoError(t, err)
	assert.True(t, written)

	latest, err := st.LatestGrantEvent(ctx, "0xres", "u2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, types.GrantKindRevoke, latest.Kind)

	none, err := st.LatestGrantEvent(ctx, "0xres", "stranger")
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestAuditDedupAndFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()

	keyed := &types.AuditEntry{
		ID:        "a1",
		Actor:     "u1",
		Timestamp: base,
		Type:      types.AuditAccessGrant,
		Message:   "Access GRANT for u2",
		Meta:      map[string]interface{}{"resource_id": "0xres"},
		EventKey:  types.EventKey(types.EventGranted, "0xtx1"),
	}
	written, err := st.AddAuditEntry(ctx, keyed)
	require.NoError(t, err)
	assert.True(t, written)

	replay := *keyed
	replay.ID = "a1-replay"
	written, err = st.AddAuditEntry(ctx, &replay)
	require.NoError(t, err)
	assert.False(t, written, "keyed entries are written once")

	// Unkeyed entries never collide with each other.
	for i, id := range []string{"b1", "b2"} {
		written, err = st.AddAuditEntry(ctx, &types.AuditEntry{
			ID:        id,
			Actor:     "u3",
			Timestamp: base.Add(time.Duration(i+1) * time.Second),
			Type:      types.AuditRecordFetch,
			Meta:      map[string]interface{}{"resource_id": "0xother"},
		})
		require.NoError(t, err)
		assert.True(t, written)
	}

	all, err := st.ListAuditEntries(ctx, types.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b2", all[0].ID, "newest first")

	fetches, err := st.ListAuditEntries(ctx, types.AuditFilter{Type: types.AuditRecordFetch, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, fetches, 2)

	byResource, err := st.ListAuditEntries(ctx, types.AuditFilter{ResourceID: "0xres", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byResource, 1)
	assert.Equal(t, "a1", byResource[0].ID)

	recent, err := st.ListAuditEntries(ctx, types.AuditFilter{Since: base.Add(1500 * time.Millisecond), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestLedgerCursorRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pos, err := st.LedgerCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos, "fresh store starts at zero")

	require.NoError(t, st.SetLedgerCursor(ctx, 17))
	pos, err = st.LedgerCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), pos)

	require.NoError(t, st.SetLedgerCursor(ctx, 18))
	pos, err = st.LedgerCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), pos)
}
