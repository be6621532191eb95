package storage

import (
	"context"
	"errors"

	"github.com/vietddude/webtape/internal/core/domain"
)

var (
	// ErrProjectNotFound is returned when a project doesn't exist
	ErrProjectNotFound = errors.New("project not found")
)

// ProjectRepository handles durable persistence of recorded scripts.
// GetProject returns (nil, nil) for a missing project; ErrProjectNotFound is
// reserved for operations that require the project to exist.
type ProjectRepository interface {
	// GetProject retrieves a project by id
	GetProject(ctx context.Context, id string) (*domain.Project, error)

	// SaveProject creates a new project
	SaveProject(ctx context.Context, p *domain.Project) error

	// UpdateProject overwrites an existing project
	UpdateProject(ctx context.Context, p *domain.Project) error

	// ListProjects returns all projects
	ListProjects(ctx context.Context) ([]*domain.Project, error)

	// DeleteProject removes a project
	DeleteProject(ctx context.Context, id string) error
}
