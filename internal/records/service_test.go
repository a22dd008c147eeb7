package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Olowonjaye/MediSecure-Chain/internal/access"
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

func newFixture(t *testing.T, ledgerMock *MockLedger) (*Service, store.Store) {
	t.Helper()

	st, err := store.NewLevelDBStore(&config.LevelDBConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	}, logger.New("error"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := access.NewEngine(st, nil, logger.New("error"), nil)
	return NewService(st, ledgerMock, engine, logger.New("error"), nil), st
}

func TestIngestRejectsMissingFields(t *testing.T) {
	svc, _ := newFixture(t, new(MockLedger))

	_, err := svc.Ingest(context.Background(), &types.IngestRequest{
		OwnerID: "", Payload: []byte("cipher"),
	}, types.RoleDoctor)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindValidation))

	_, err = svc.Ingest(context.Background(), &types.IngestRequest{
		OwnerID: "u1", Payload: nil,
	}, types.RoleDoctor)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindValidation))
}

func TestIngestRejectsNonCreatorRoles(t *testing.T) {
	svc, _ := newFixture(t, new(MockLedger))

	_, err := svc.Ingest(context.Background(), &types.IngestRequest{
		OwnerID: "u1", Payload: []byte("cipher"),
	}, types.RolePatient)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindAuthorization))
}

func TestIngestDerivesDigestAndFreshIDs(t *testing.T) {
	ledgerMock := new(MockLedger)
	ledgerMock.On("Register", mock.Anything, mock.Anything, "cid-1", mock.Anything, mock.Anything).
		Return("0xtx1", nil).Once()
	ledgerMock.On("Register", mock.Anything, mock.Anything, "cid-1", mock.Anything, mock.Anything).
		Return("0xtx2", nil).Once()

	svc, st := newFixture(t, ledgerMock)
	ctx := context.Background()

	payload := []byte("encrypted-lab-report")
	sum := sha256.Sum256(payload)
	wantDigest := "0x" + hex.EncodeToString(sum[:])

	req := &types.IngestRequest{OwnerID: "u1", Payload: payload, ContentAddress: "cid-1"}

	first, err := svc.Ingest(ctx, req, types.RoleDoctor)
	require.NoError(t, err)
	second, err := svc.Ingest(ctx, req, types.RoleDoctor)
	require.NoError(t, err)

	assert.Equal(t, wantDigest, first.Resource.CipherDigest)
	assert.Equal(t, wantDigest, second.Resource.CipherDigest, "same payload, same digest")
	assert.NotEqual(t, first.Resource.ResourceID, second.Resource.ResourceID,
		"resubmission yields a distinct resource")
	assert.Equal(t, "0xtx1", first.TxRef)
	assert.False(t, first.Pending)

	stored, err := st.FindResource(ctx, first.Resource.ResourceID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "0xtx1", stored.TxRef)

	entries, err := st.ListAuditEntries(ctx, types.AuditFilter{Type: types.AuditRecordCreate, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestIngestLedgerFailureKeepsRecordPending(t *testing.T) {
	ledgerMock := new(MockLedger)
	ledgerMock.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", types.NewChainError(types.ErrCodeChainCallFailed, "bridge down", nil))

	svc, st := newFixture(t, ledgerMock)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, &types.IngestRequest{
		OwnerID: "u1", Payload: []byte("cipher"),
	}, types.RoleNurse)
	require.NoError(t, err, "a ledger outage does not fail ingestion")
	assert.True(t, result.Pending)
	assert.Empty(t, result.TxRef)

	stored, err := st.FindResource(ctx, result.Resource.ResourceID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Confirmed())
}

func TestGetEnforcesDecision(t *testing.T) {
	ledgerMock := new(MockLedger)
	ledgerMock.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("0xtx1", nil)

	svc, st := newFixture(t, ledgerMock)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, &types.IngestRequest{
		OwnerID: "owner-1", Payload: []byte("cipher"),
	}, types.RoleDoctor)
	require.NoError(t, err)
	resourceID := result.Resource.ResourceID

	_, err = svc.Get(ctx, "0xmissing", "owner-1", types.RoleDoctor)
	assert.True(t, types.IsKind(err, types.ErrKindNotFound))

	_, err = svc.Get(ctx, resourceID, "stranger", types.RoleDoctor)
	assert.True(t, types.IsKind(err, types.ErrKindAuthorization))

	got, err := svc.Get(ctx, resourceID, "owner-1", types.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, resourceID, got.ResourceID)

	fetches, err := st.ListAuditEntries(ctx, types.AuditFilter{Type: types.AuditRecordFetch, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, fetches, 1, "denied reads leave no fetch entry")
}
