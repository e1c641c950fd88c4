package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	projects map[int64]Project
	err      error
}

func (m memoryRepo) Get(_ context.Context, id int64) (Project, error) {
	if m.err != nil {
		return Project{}, m.err
	}
	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return p, nil
}

func (m memoryRepo) ListActive(context.Context) ([]Project, error) {
	return nil, m.err
}

func TestIsProjectActive(t *testing.T) {
	svc := NewService(memoryRepo{projects: map[int64]Project{
		1: {ID: 1, Name: "Torre Norte", Active: true},
		2: {ID: 2, Name: "Bodega", Active: false},
	}})
	ctx := context.Background()

	ok, err := svc.IsProjectActive(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.IsProjectActive(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.IsProjectActive(ctx, 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsProjectActivePropagatesStorageErrors(t *testing.T) {
	svc := NewService(memoryRepo{err: errors.New("down")})
	_, err := svc.IsProjectActive(context.Background(), 1)
	require.EqualError(t, err, "down")
}
