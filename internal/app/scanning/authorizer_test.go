package scanning

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scope"
	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/pkg/common/logger"
)

func setupAuthorizerTest() (*TargetAuthorizer, *mockScopeRepo) {
	scopes := new(mockScopeRepo)
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewTargetAuthorizer(scopes, logger.Noop(), tracer), scopes
}

func newTestUser(role catalog.Role) *catalog.User {
	return catalog.ReconstructUser(uuid.New(), "auditor", role)
}

func TestAuthorize_ElevatedRoleBypassesScope(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()
	scopeID := uuid.New()

	err := authorizer.Authorize(context.Background(), newTestUser(catalog.RoleAdmin), &scopeID, "198.51.100.7")

	require.NoError(t, err)
	scopes.AssertNotCalled(t, "GetScope", mock.Anything, mock.Anything)
}

func TestAuthorize_NoScopeAllowsAnyTarget(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()

	err := authorizer.Authorize(context.Background(), newTestUser(catalog.RoleUser), nil, "198.51.100.7")

	require.NoError(t, err)
	scopes.AssertNotCalled(t, "GetScope", mock.Anything, mock.Anything)
}

func TestAuthorize_TargetInsideCIDR(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()
	scopeID := uuid.New()
	sc := scope.ReconstructScope(scopeID, "lab", []string{"10.0.0.0/24"}, nil, true)
	scopes.On("GetScope", mock.Anything, scopeID).Return(sc, nil)

	require.NoError(t, authorizer.Authorize(context.Background(), newTestUser(catalog.RoleUser), &scopeID, "10.0.0.5"))
}

func TestAuthorize_TargetOutsideCIDR(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()
	scopeID := uuid.New()
	sc := scope.ReconstructScope(scopeID, "lab", []string{"10.0.0.0/24"}, nil, true)
	scopes.On("GetScope", mock.Anything, scopeID).Return(sc, nil)

	err := authorizer.Authorize(context.Background(), newTestUser(catalog.RoleUser), &scopeID, "10.0.1.5")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTargetOutOfScope)
}

func TestAuthorize_WildcardHostPattern(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()
	scopeID := uuid.New()
	sc := scope.ReconstructScope(scopeID, "web", nil, []string{"*.example.com"}, true)
	scopes.On("GetScope", mock.Anything, scopeID).Return(sc, nil)

	user := newTestUser(catalog.RoleUser)

	// The wildcard covers subdomains and the bare suffix itself, but never
	// suffix-similar registrations.
	require.NoError(t, authorizer.Authorize(context.Background(), user, &scopeID, "api.example.com"))
	require.NoError(t, authorizer.Authorize(context.Background(), user, &scopeID, "example.com"))
	assert.ErrorIs(t, authorizer.Authorize(context.Background(), user, &scopeID, "evilexample.com"), ErrTargetOutOfScope)
}

func TestAuthorize_InactiveScopeDenied(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()
	scopeID := uuid.New()
	sc := scope.ReconstructScope(scopeID, "retired", []string{"10.0.0.0/24"}, nil, false)
	scopes.On("GetScope", mock.Anything, scopeID).Return(sc, nil)

	err := authorizer.Authorize(context.Background(), newTestUser(catalog.RoleUser), &scopeID, "10.0.0.5")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScopeInactive)
}

func TestAuthorize_UnknownScope(t *testing.T) {
	authorizer, scopes := setupAuthorizerTest()
	scopeID := uuid.New()
	scopes.On("GetScope", mock.Anything, scopeID).Return(nil, catalog.ErrScopeNotFound)

	err := authorizer.Authorize(context.Background(), newTestUser(catalog.RoleUser), &scopeID, "10.0.0.5")

	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrScopeNotFound))
}
