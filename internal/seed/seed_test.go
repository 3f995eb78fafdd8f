package seed

import (
	"context"
	"testing"

	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureAdmin(t *testing.T) {
	db := dbtest.New(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    dbtest.Node(t),
		Enforcer: enforcer,
	})
	ctx := context.Background()

	created, err := EnsureAdmin(ctx, db, authz, "owner")
	require.NoError(t, err)
	assert.True(t, created)

	ok, err := authz.CanPerform(ctx, "owner", authorization.ActionInvoiceVoid)
	require.NoError(t, err)
	assert.True(t, ok)

	created, err = EnsureAdmin(ctx, db, authz, "owner")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureAdminKeepsExistingRole(t *testing.T) {
	db := dbtest.New(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    dbtest.Node(t),
		Enforcer: enforcer,
	})
	ctx := context.Background()
	require.NoError(t, authz.AssignRole(ctx, "pat", authorization.RoleProvider))

	created, err := EnsureAdmin(ctx, db, authz, "pat")
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := authz.CanPerform(ctx, "pat", authorization.ActionInvoiceVoid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureAdminRequiresUser(t *testing.T) {
	db := dbtest.New(t)
	_, err := EnsureAdmin(context.Background(), db, nil, "x")
	assert.Error(t, err)
}
