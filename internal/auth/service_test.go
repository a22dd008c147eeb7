package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// MockPassport is a mock personhood verifier.
type MockPassport struct {
	mock.Mock
}

func (m *MockPassport) Verify(ctx context.Context, address, proof string) (bool, error) {
	args := m.Called(ctx, address, proof)
	return args.Bool(0), args.Error(1)
}

func newTestService(t *testing.T, passport PersonhoodVerifier) (*Service, store.Store) {
	t.Helper()

	st, err := store.NewLevelDBStore(&config.LevelDBConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	}, logger.New("error"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens := NewTokenManager(&config.JWTConfig{
		SecretKey: "test-secret-key",
		TokenTTL:  3600,
		Issuer:    "medisecure-test",
	})

	return NewService(st, tokens, passport, logger.New("error")), st
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newTestService(t, new(MockPassport))
	ctx := context.Background()

	resp, err := svc.Signup(ctx, &types.SignupRequest{
		Name:     "Dr. Amara",
		Email:    "  Amara@Example.COM ",
		Password: "correct-horse",
		Role:     types.RoleDoctor,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "amara@example.com", resp.User.Email, "email is normalized")

	// Duplicate email.
	_, err = svc.Signup(ctx, &types.SignupRequest{
		Email:    "amara@example.com",
		Password: "other-password",
		Role:     types.RoleNurse,
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindConflict))

	login, err := svc.Login(ctx, &types.LoginRequest{
		Email:    "AMARA@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = svc.Login(ctx, &types.LoginRequest{
		Email:    "amara@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindAuthentication))
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newTestService(t, new(MockPassport))
	ctx := context.Background()

	_, err := svc.Signup(ctx, &types.SignupRequest{Email: "not-an-email", Password: "long-enough", Role: types.RoleDoctor})
	assert.True(t, types.IsKind(err, types.ErrKindValidation))

	_, err = svc.Signup(ctx, &types.SignupRequest{Email: "a@b.com", Password: "short", Role: types.RoleDoctor})
	assert.True(t, types.IsKind(err, types.ErrKindValidation))

	_, err = svc.Signup(ctx, &types.SignupRequest{Email: "a@b.com", Password: "long-enough", Role: "wizard"})
	assert.True(t, types.IsKind(err, types.ErrKindValidation))
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager(&config.JWTConfig{SecretKey: "s3cret", TokenTTL: 60, Issuer: "medisecure"})

	signed, err := tokens.Issue(&types.User{ID: "u1", Email: "a@b.com", Role: types.RoleAdmin})
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, types.RoleAdmin, claims.Role)

	other := NewTokenManager(&config.JWTConfig{SecretKey: "different", TokenTTL: 60})
	_, err = other.Verify(signed)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindAuthentication))
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _ := newTestService(t, new(MockPassport))
	ctx := context.Background()

	_, err := svc.Signup(ctx, &types.SignupRequest{
		Email:    "reset@example.com",
		Password: "original-pass",
		Role:     types.RolePatient,
	})
	require.NoError(t, err)

	_, err = svc.ForgotPassword(ctx, "unknown@example.com")
	assert.True(t, types.IsKind(err, types.ErrKindNotFound))

	token, err := svc.ForgotPassword(ctx, "reset@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	err = svc.ResetPassword(ctx, "bogus-token", "brand-new-pass")
	assert.True(t, types.IsKind(err, types.ErrKindAuthentication))

	require.NoError(t, svc.ResetPassword(ctx, token, "brand-new-pass"))

	_, err = svc.Login(ctx, &types.LoginRequest{Email: "reset@example.com", Password: "original-pass"})
	require.Error(t, err, "old password no longer works")

	_, err = svc.Login(ctx, &types.LoginRequest{Email: "reset@example.com", Password: "brand-new-pass"})
	assert.NoError(t, err)

	err = svc.ResetPassword(ctx, token, "another-pass")
	assert.Error(t, err, "reset tokens are single use")
}

func TestPassportVerification(t *testing.T) {
	passport := new(MockPassport)
	passport.On("Verify", mock.Anything, "0xaddr", "proof-blob").Return(true, nil)

	svc, st := newTestService(t, passport)
	ctx := context.Background()

	resp, err := svc.Signup(ctx, &types.SignupRequest{
		Email:    "human@example.com",
		Password: "long-enough",
		Role:     types.RoleConsultant,
	})
	require.NoError(t, err)
	assert.False(t, resp.User.HumanVerified)

	verified, err := svc.VerifyPassport(ctx, resp.User.ID, "0xaddr", "proof-blob")
	require.NoError(t, err)
	assert.True(t, verified)

	user, err := st.FindUserByID(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.True(t, user.HumanVerified)
	passport.AssertExpectations(t)
}

func TestUpdateRole(t *testing.T) {
	svc, _ := newTestService(t, new(MockPassport))
	ctx := context.Background()

	resp, err := svc.Signup(ctx, &types.SignupRequest{
		Email:    "promote@example.com",
		Password: "long-enough",
		Role:     types.RoleNurse,
	})
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, resp.User.ID, "wizard")
	assert.True(t, types.IsKind(err, types.ErrKindValidation))

	_, err = svc.UpdateRole(ctx, "missing-user", types.RoleDoctor)
	assert.True(t, types.IsKind(err, types.ErrKindNotFound))

	updated, err := svc.UpdateRole(ctx, resp.User.ID, types.RoleDoctor)
	require.NoError(t, err)
	assert.Equal(t, types.RoleDoctor, updated.Role)
}
