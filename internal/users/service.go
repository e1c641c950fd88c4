package users

import (
	"context"

	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	ListActive(ctx context.Context) ([]User, error)
	CountActive(ctx context.Context) (int, error)
}

// Service exposes the identity and role provider.
type Service struct {
	repo RepositoryPort
}

var _ rbac.Directory = (*Service)(nil)

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Active returns the user when it exists and is active.
func (s *Service) Active(ctx context.Context, id int64) (User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.Active {
		return User{}, shared.ErrUserNotFound
	}
	return u, nil
}

// Lookup resolves an active user into an actor.
func (s *Service) Lookup(ctx context.Context, id int64) (rbac.Actor, error) {
	u, err := s.Active(ctx, id)
	if err != nil {
		return rbac.Actor{}, err
	}
	return u.Actor(), nil
}

// ListActive returns every active user.
func (s *Service) ListActive(ctx context.Context) ([]User, error) {
	return s.repo.ListActive(ctx)
}

// CountActive returns how many users are active.
func (s *Service) CountActive(ctx context.Context) (int, error) {
	return s.repo.CountActive(ctx)
}

func rbacRole(level int16) rbac.Role {
	role := rbac.Role(level)
	if !role.Valid() {
		return rbac.RoleCommon
	}
	return role
}
