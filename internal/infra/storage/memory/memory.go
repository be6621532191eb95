package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/infra/storage"
)

// ProjectRepo is an in-memory ProjectRepository, used for tests and when no
// database is configured.
type ProjectRepo struct {
	mu       sync.RWMutex
	projects map[string]*domain.Project
}

func NewProjectRepo() *ProjectRepo {
	return &ProjectRepo{projects: make(map[string]*domain.Project)}
}

func (r *ProjectRepo) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	cp := clone(p)
	return cp, nil
}

func (r *ProjectRepo) SaveProject(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = clone(p)
	return nil
}

func (r *ProjectRepo) UpdateProject(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return storage.ErrProjectNotFound
	}
	r.projects[p.ID] = clone(p)
	return nil
}

func (r *ProjectRepo) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ProjectRepo) DeleteProject(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return storage.ErrProjectNotFound
	}
	delete(r.projects, id)
	return nil
}

func clone(p *domain.Project) *domain.Project {
	cp := *p
	cp.Steps = make([]*domain.Step, len(p.Steps))
	for i, s := range p.Steps {
		sc := *s
		cp.Steps[i] = &sc
	}
	return &cp
}
