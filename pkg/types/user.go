package types

import "time"

// Role represents the different user roles in the system
type Role string

const (
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RolePharmacist Role = "pharmacist"
	RoleAdmin      Role = "admin"
	RoleResearcher Role = "researcher"
	RolePatient    Role = "patient"
	RoleConsultant Role = "consultant"
	RoleAuditor    Role = "auditor"
)

// Roles is the closed set of valid roles.
var Roles = []Role{
	RoleDoctor,
	RoleNurse,
	RolePharmacist,
	RoleAdmin,
	RoleResearcher,
	RolePatient,
	RoleConsultant,
	RoleAuditor,
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// RecordCreatorRoles are permitted to register new records.
var RecordCreatorRoles = []Role{RoleDoctor, RoleNurse, RoleAdmin, RoleResearcher, RolePharmacist}

// AccessManagerRoles are permitted to grant and revoke access.
var AccessManagerRoles = []Role{RoleDoctor, RoleAdmin, RoleResearcher}

// AuditReaderRoles are permitted to query the audit trail.
var AuditReaderRoles = []Role{RoleAdmin, RoleAuditor}

// RoleIn reports whether r is in the allowed set.
func RoleIn(r Role, allowed []Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// User represents a system user
type User struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	Role          Role      `json:"role" db:"role"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	HumanVerified bool      `json:"human_verified" db:"human_verified"`
	ResetToken    string    `json:"-" db:"reset_token"`
	ResetExpires  time.Time `json:"-" db:"reset_expires"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// PublicUser is the representation of a user safe to return to clients.
type PublicUser struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	HumanVerified bool      `json:"human_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public strips credential material from a user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		HumanVerified: u.HumanVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// UserClaims represents JWT token claims
type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// SignupRequest represents user registration data
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     Role   `json:"role" binding:"required"`
}

// LoginRequest represents user login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned on successful signup or login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  *PublicUser `json:"user"`
}
