package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

const resetTokenTTL = time.Hour

// PersonhoodVerifier checks a proof of personhood for an address.
type PersonhoodVerifier interface {
	Verify(ctx context.Context, address, proof string) (bool, error)
}

// Service handles user accounts and credentials.
type Service struct {
	store    store.Store
	tokens   *TokenManager
	passport PersonhoodVerifier
	logger   *logger.Logger
}

// NewService creates an auth service.
func NewService(st store.Store, tokens *TokenManager, passport PersonhoodVerifier, log *logger.Logger) *Service {
	return &Service{store: st, tokens: tokens, passport: passport, logger: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a new user and returns a signed token.
func (s *Service) Signup(ctx context.Context, req *types.SignupRequest) (*types.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "a valid email is required", nil)
	}
	if len(req.Password) < 8 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "password must be at least 8 characters", nil)
	}
	if !req.Role.Valid() {
		return nil, types.NewValidationError(types.ErrCodeInvalidRole, "unknown role",
			map[string]interface{}{"role": req.Role})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to hash password", err)
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Role:         req.Role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User signed up")

	return &types.AuthResponse{Token: token, User: user.Public()}, nil
}

// Login verifies credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, req *types.LoginRequest) (*types.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.logger.Security("login_failed", "", map[string]interface{}{"email": email})
		return nil, types.NewAuthenticationError("INVALID_CREDENTIALS", "Invalid email or password")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	return &types.AuthResponse{Token: token, User: user.Public()}, nil
}

// ForgotPassword issues a short-lived reset token for the account.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", types.NewNotFoundError(types.ErrCodeNotFound, "No account with that email")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to generate reset token", err)
	}
	token := hex.EncodeToString(raw)
	expires := time.Now().UTC().Add(resetTokenTTL)

	if _, err := s.store.UpdateUser(ctx, user.ID, store.UserPatch{
		ResetToken:   &token,
		ResetExpires: &expires,
	}); err != nil {
		return "", err
	}

	s.logger.Security("password_reset_requested", user.ID, nil)
	return token, nil
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "reset token is required", nil)
	}
	if len(newPassword) < 8 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "password must be at least 8 characters", nil)
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}

	var user *types.User
	for _, u := range users {
		if u.ResetToken == token {
			user = u
			break
		}
	}
	if user == nil || user.ResetExpires.IsZero() || time.Now().After(user.ResetExpires) {
		return types.NewAuthenticationError("INVALID_RESET_TOKEN", "Reset token is invalid or expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to hash password", err)
	}

	hashStr := string(hash)
	cleared := ""
	zero := time.Time{}
	if _, err := s.store.UpdateUser(ctx, user.ID, store.UserPatch{
		PasswordHash: &hashStr,
		ResetToken:   &cleared,
		ResetExpires: &zero,
	}); err != nil {
		return err
	}

	s.logger.Security("password_reset_completed", user.ID, nil)
	return nil
}

// VerifyPassport checks a personhood proof and marks the user verified.
func (s *Service) VerifyPassport(ctx context.Context, userID, address, proof string) (bool, error) {
	valid, err := s.passport.Verify(ctx, address, proof)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, nil
	}

	verified := true
	if _, err := s.store.UpdateUser(ctx, userID, store.UserPatch{HumanVerified: &verified}); err != nil {
		return false, err
	}
	return true, nil
}

// ListUsers returns all accounts, credentials stripped.
func (s *Service) ListUsers(ctx context.Context) ([]*types.PublicUser, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	public := make([]*types.PublicUser, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	return public, nil
}

// UpdateRole changes a user's role.
func (s *Service) UpdateRole(ctx context.Context, userID string, role types.Role) (*types.PublicUser, error) {
	if !role.Valid() {
		return nil, types.NewValidationError(types.ErrCodeInvalidRole, "unknown role",
			map[string]interface{}{"role": role})
	}

	user, err := s.store.UpdateUser(ctx, userID, store.UserPatch{Role: &role})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "User not found")
	}

	s.logger.Security("role_updated", userID, map[string]interface{}{"role": role})
	return user.Public(), nil
}
