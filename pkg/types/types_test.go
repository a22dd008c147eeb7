package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventKeyCanonicalForm(t *testing.T) {
	key := EventKey(EventGranted, "0xabc123")
	assert.Equal(t, "granted:0xabc123", key)

	event := &LedgerEvent{Kind: EventGranted, TxRef: "0xabc123", LogIndex: 42}
	assert.Equal(t, key, event.Key(), "derived key must not depend on the log index")
}

func TestEventKeyDistinguishesKinds(t *testing.T) {
	assert.NotEqual(t,
		EventKey(EventGranted, "0xsame"),
		EventKey(EventRevoked, "0xsame"))
}

func TestRoleValidation(t *testing.T) {
	for _, role := range Roles {
		assert.True(t, role.Valid(), "role %s should be valid", role)
	}
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
}

func TestRoleSets(t *testing.T) {
	assert.True(t, RoleIn(RoleDoctor, RecordCreatorRoles))
	assert.True(t, RoleIn(RolePharmacist, RecordCreatorRoles))
	assert.False(t, RoleIn(RolePatient, RecordCreatorRoles))

	assert.True(t, RoleIn(RoleResearcher, AccessManagerRoles))
	assert.False(t, RoleIn(RoleNurse, AccessManagerRoles))

	assert.True(t, RoleIn(RoleAuditor, AuditReaderRoles))
	assert.False(t, RoleIn(RoleDoctor, AuditReaderRoles))
}

func TestResourceConfirmed(t *testing.T) {
	r := &Resource{ResourceID: "0xres"}
	assert.False(t, r.Confirmed())

	r.TxRef = "0xtx"
	assert.True(t, r.Confirmed())
}

func TestPublicUserStripsCredentials(t *testing.T) {
	user := &User{
		ID:           "u1",
		Email:        "doc@example.com",
		Role:         RoleDoctor,
		PasswordHash: "$2a$10$secret",
		ResetToken:   "tok",
	}

	public := user.Public()
	assert.Equal(t, "u1", public.ID)
	assert.Equal(t, RoleDoctor, public.Role)
}

func TestErrorKindMapping(t *testing.T) {
	chain := NewChainError(ErrCodeChainCallFailed, "bridge down", errors.New("dial tcp"))
	assert.Equal(t, ErrKindChain, KindOf(chain))
	assert.True(t, IsKind(chain, ErrKindChain))
	assert.Equal(t, 502, chain.Kind.HTTPStatus())

	assert.Equal(t, 400, ErrKindValidation.HTTPStatus())
	assert.Equal(t, 403, ErrKindAuthorization.HTTPStatus())
	assert.Equal(t, 404, ErrKindNotFound.HTTPStatus())
	assert.Equal(t, 503, ErrKindPersistence.HTTPStatus())

	assert.Equal(t, ErrKindInternal, KindOf(errors.New("plain")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPersistenceError(ErrCodeStoreUnavailable, "store down", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
}
