package access

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// MockLedger is a mock registry bridge client.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Register(ctx context.Context, resourceID, contentAddress, cipherDigest, metadata string) (string, error) {
	args := m.Called(ctx, resourceID, contentAddress, cipherDigest, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) Grant(ctx context.Context, resourceID, grantee, encryptedKey string) (string, error) {
	args := m.Called(ctx, resourceID, grantee, encryptedKey)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) Revoke(ctx context.Context, resourceID, grantee string) (string, error) {
	args := m.Called(ctx, resourceID, grantee)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) FetchEvents(ctx context.Context, fromIndex uint64, limit int) ([]*types.LedgerEvent, error) {
	args := m.Called(ctx, fromIndex, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.LedgerEvent), args.Error(1)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.NewLevelDBStore(&config.LevelDBConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	}, logger.New("error"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedResource(t *testing.T, st store.Store, resourceID, ownerID string) *types.Resource {
	t.Helper()

	resource := &types.Resource{
		ResourceID:   resourceID,
		OwnerID:      ownerID,
		CipherDigest: "0xdigest",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateResource(context.Background(), resource))
	return resource
}

func TestDecisionOwnerAndAdminAlwaysAllowed(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, nil, logger.New("error"), nil)
	resource := seedResource(t, st, "0xres", "owner-1")

	allowed, err := engine.CanAccess(context.Background(), resource, "owner-1", types.RolePatient)
	require.NoError(t, err)
	assert.True(t, allowed, "owner reads without any grant")

	allowed, err = engine.CanAccess(context.Background(), resource, "someone-else", types.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, allowed, "admin reads without any grant")
}

func TestDecisionInitialStateIsDenied(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, nil, logger.New("error"), nil)
	resource := seedResource(t, st, "0xres", "owner-1")

	allowed, err := engine.CanAccess(context.Background(), resource, "stranger", types.RoleDoctor)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestDecisionFollowsLatestTransition(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, nil, logger.New("error"), nil)
	resource := seedResource(t, st, "0xres", "owner-1")
	ctx := context.Background()

	base := time.Now().UTC()
	_, err := st.RecordGrantEvent(ctx, &types.AccessGrantEvent{
		ID: "e1", ResourceID: "0xres", Grantee: "u2", Kind: types.GrantKindGrant,
		TxRef: "0xtx1", EventKey: types.EventKey(types.EventGranted, "0xtx1"), CreatedAt: base,
	})
	require.NoError(t, err)

	allowed, err := engine.CanAccess(ctx, resource, "u2", types.RoleNurse)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = st.RecordGrantEvent(ctx, &types.AccessGrantEvent{
		ID: "e2", ResourceID: "0xres", Grantee: "u2", Kind: types.GrantKindRevoke,
		TxRef: "0xtx2", EventKey: types.EventKey(types.EventRevoked, "0xtx2"), CreatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	allowed, err = engine.CanAccess(ctx, resource, "u2", types.RoleNurse)
	require.NoError(t, err)
	assert.False(t, allowed, "a revoked pair is denied even though grant rows exist")
}

func TestCommandRejectsUnauthorizedRole(t *testing.T) {
	st := newTestStore(t)
	ledgerMock := new(MockLedger)
	svc := NewCommandService(st, ledgerMock, nil, logger.New("error"), nil)

	_, err := svc.Execute(context.Background(), &types.AccessCommand{
		ActorID:    "u1",
		ActorRole:  types.RoleNurse,
		ResourceID: "0xres",
		Grantee:    "u2",
		Kind:       types.GrantKindGrant,
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindAuthorization))
	ledgerMock.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommandRequiresExistingResource(t *testing.T) {
	st := newTestStore(t)
	ledgerMock := new(MockLedger)
	svc := NewCommandService(st, ledgerMock, nil, logger.New("error"), nil)

	_, err := svc.Execute(context.Background(), &types.AccessCommand{
		ActorID:    "u1",
		ActorRole:  types.RoleDoctor,
		ResourceID: "0xmissing",
		Grantee:    "u2",
		Kind:       types.GrantKindGrant,
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindNotFound))
}

func TestCommandLedgerFailureLeavesNothingBehind(t *testing.T) {
	st := newTestStore(t)
	seedResource(t, st, "0xres", "owner-1")
	ctx := context.Background()

	ledgerMock := new(MockLedger)
	ledgerMock.On("Grant", mock.Anything, "0xres", "u2", "").
		Return("", types.NewChainError(types.ErrCodeChainCallFailed, "bridge down", nil))

	svc := NewCommandService(st, ledgerMock, nil, logger.New("error"), nil)
	_, err := svc.Execute(ctx, &types.AccessCommand{
		ActorID:    "u1",
		ActorRole:  types.RoleDoctor,
		ResourceID: "0xres",
		Grantee:    "u2",
		Kind:       types.GrantKindGrant,
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindChain))

	latest, err := st.LatestGrantEvent(ctx, "0xres", "u2")
	require.NoError(t, err)
	assert.Nil(t, latest, "a rejected transition must not change local state")

	entries, err := st.ListAuditEntries(ctx, types.AuditFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommandGrantThenRevoke(t *testing.T) {
	st := newTestStore(t)
	resource := seedResource(t, st, "0xres", "owner-1")
	ctx := context.Background()

	ledgerMock := new(MockLedger)
	ledgerMock.On("Grant", mock.Anything, "0xres", "u2", "enc-key").Return("0xtx1", nil)
	ledgerMock.On("Revoke", mock.Anything, "0xres", "u2").Return("0xtx2", nil)

	svc := NewCommandService(st, ledgerMock, nil, logger.New("error"), nil)
	engine := NewEngine(st, nil, logger.New("error"), nil)

	txRef, err := svc.Execute(ctx, &types.AccessCommand{
		ActorID:      "u1",
		ActorRole:    types.RoleDoctor,
		ResourceID:   "0xres",
		Grantee:      "u2",
		Kind:         types.GrantKindGrant,
		EncryptedKey: "enc-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xtx1", txRef)

	allowed, err := engine.CanAccess(ctx, resource, "u2", types.RoleNurse)
	require.NoError(t, err)
	assert.True(t, allowed)

	latest, err := st.LatestGrantEvent(ctx, "0xres", "u2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, types.EventKey(types.EventGranted, "0xtx1"), latest.EventKey)

	_, err = svc.Execute(ctx, &types.AccessCommand{
		ActorID:    "u1",
		ActorRole:  types.RoleDoctor,
		ResourceID: "0xres",
		Grantee:    "u2",
		Kind:       types.GrantKindRevoke,
	})
	require.NoError(t, err)

	allowed, err = engine.CanAccess(ctx, resource, "u2", types.RoleNurse)
	require.NoError(t, err)
	assert.False(t, allowed)

	entries, err := st.ListAuditEntries(ctx, types.AuditFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	ledgerMock.AssertExpectations(t)
}
