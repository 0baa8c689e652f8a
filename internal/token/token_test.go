package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/testutil"
)

func TestRoundTrip(t *testing.T) {
	svc := NewService("test-key", "courier", "courier-api")
	actor := testutil.NewActor("records", domain.RoleVerifier, domain.RoleDispatcher)

	signed, err := svc.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)

	got, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, got.ID)
	assert.Equal(t, actor.Department, got.Department)
	assert.ElementsMatch(t, actor.Roles, got.Roles)
}

func TestExpiredToken(t *testing.T) {
	svc := NewService("test-key", "courier", "courier-api")
	actor := testutil.NewActor("records", domain.RoleVerifier)

	signed, err := svc.GenerateAccessToken(actor, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestWrongSigningKey(t *testing.T) {
	issuer := NewService("key-one", "courier", "courier-api")
	verifier := NewService("key-two", "courier", "courier-api")
	actor := testutil.NewActor("records", domain.RoleVerifier)

	signed, err := issuer.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGarbageToken(t *testing.T) {
	svc := NewService("test-key", "courier", "courier-api")
	_, err := svc.ValidateToken("not-a-jwt")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
