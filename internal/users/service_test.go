package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type memoryRepo struct {
	users map[int64]User
}

func (m *memoryRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) ListActive(context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) CountActive(ctx context.Context) (int, error) {
	list, _ := m.ListActive(ctx)
	return len(list), nil
}

func TestLookupRejectsInactiveUsers(t *testing.T) {
	svc := NewService(&memoryRepo{users: map[int64]User{
		1: {ID: 1, Role: rbac.RoleAdmin, Active: true},
		2: {ID: 2, Role: rbac.RoleCommon, Active: false},
	}})
	ctx := context.Background()

	actor, err := svc.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, rbac.Actor{ID: 1, Role: rbac.RoleAdmin}, actor)

	_, err = svc.Lookup(ctx, 2)
	require.ErrorIs(t, err, shared.ErrUserNotFound)
	_, err = svc.Lookup(ctx, 3)
	require.ErrorIs(t, err, shared.ErrUserNotFound)

	n, err := svc.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRbacRoleFallsBackToCommon(t *testing.T) {
	require.Equal(t, rbac.RoleSuperAdmin, rbacRole(1))
	require.Equal(t, rbac.RoleCommon, rbacRole(0))
	require.Equal(t, rbac.RoleCommon, rbacRole(7))
}
