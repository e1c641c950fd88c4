package projects

import (
	"context"
	"errors"
)

// RepositoryPort defines data access methods for projects.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Project, error)
	ListActive(ctx context.Context) ([]Project, error)
}

// Directory answers whether a project may receive new entries.
type Directory interface {
	IsProjectActive(ctx context.Context, id int64) (bool, error)
}

// Service is the project directory.
type Service struct {
	repo RepositoryPort
}

var _ Directory = (*Service)(nil)

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// IsProjectActive reports whether id names an active project; unknown ids are inactive.
func (s *Service) IsProjectActive(ctx context.Context, id int64) (bool, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.Active, nil
}

// ListActive returns active projects.
func (s *Service) ListActive(ctx context.Context) ([]Project, error) {
	return s.repo.ListActive(ctx)
}
