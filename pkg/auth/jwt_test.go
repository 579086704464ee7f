package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hospital-api/internal/model"
)

func testUser(role model.Role) *model.User {
	return &model.User{
		ID:    uuid.New(),
		Name:  "Dr. Chen",
		Email: "chen@hospital.org",
		Role:  role,
	}
}

func TestGenerateAndValidate(t *testing.T) {
	svc := NewTokenService("unit-test-secret", time.Hour)
	user := testUser(model.RoleDoctor)

	token, err := svc.Generate(user)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	principal, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.ID)
	assert.Equal(t, model.RoleDoctor, principal.Role)
	assert.Equal(t, user.Name, principal.Name)
	assert.Equal(t, user.Email, principal.Email)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-a", time.Hour).Generate(testUser(model.RoleAdmin))
	require.NoError(t, err)

	_, err = NewTokenService("secret-b", time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("unit-test-secret", -time.Minute)
	token, err := svc.Generate(testUser(model.RolePatient))
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestPrincipalRejectsUnknownRole(t *testing.T) {
	claims := &Claims{UserID: uuid.New().String(), Role: "superuser"}
	_, err := claims.Principal()
	assert.Error(t, err)
}
