package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuthz(t *testing.T) Service {
	t.Helper()
	db := dbtest.New(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    dbtest.Node(t),
		Enforcer: enforcer,
	})
}

func TestCanPerformByRole(t *testing.T) {
	svc := newTestAuthz(t)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, "alice", RoleBiller))
	require.NoError(t, svc.AssignRole(ctx, "pat", RoleProvider))

	ok, err := svc.CanPerform(ctx, "alice", ActionInvoiceGenerate)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanPerform(ctx, "pat", ActionInvoiceGenerate)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.CanPerform(ctx, "pat", ActionTimesheetCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanPerform(ctx, "stranger", ActionQueueView)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	svc := newTestAuthz(t)
	ctx := context.Background()
	require.NoError(t, svc.AssignRole(ctx, "pat", RoleProvider))

	assert.ErrorIs(t, svc.Authorize(ctx, "pat", ActionQueueDispatch), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, "system", ActionQueueDispatch))
}

func TestRoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestAuthz(t)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, "sam", RoleProvider))
	ok, err := svc.CanPerform(ctx, "sam", ActionInvoiceVoid)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.AssignRole(ctx, "sam", RoleAdmin))
	ok, err = svc.CanPerform(ctx, "sam", ActionInvoiceVoid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanPerformValidatesInput(t *testing.T) {
	svc := newTestAuthz(t)
	_, err := svc.CanPerform(context.Background(), "", ActionInvoiceView)
	assert.ErrorIs(t, err, ErrInvalidActor)
	_, err = svc.CanPerform(context.Background(), "alice", "payroll.run")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Error(t, svc.AssignRole(context.Background(), "alice", "owner"))
}
