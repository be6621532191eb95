package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/infra/storage"
)

func newTestRepo(t *testing.T) *ProjectRepo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "webtape.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestProjectRepo_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := &domain.Project{
		ID:       "proj-1",
		Name:     "checkout",
		StartURL: "https://shop.example.com",
		Steps: []*domain.Step{
			{ID: "s0", Event: domain.StepEventOpen, Value: "https://shop.example.com", Label: "open shop"},
			{ID: "s1", Event: domain.StepEventClick, Locator: "#buy", Label: "click buy"},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := repo.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}

	got, err := repo.GetProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got == nil {
		t.Fatal("project not found after save")
	}
	if got.Name != "checkout" || got.StartURL != "https://shop.example.com" {
		t.Errorf("fields lost: %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[1].Locator != "#buy" {
		t.Errorf("steps lost: %+v", got.Steps)
	}
}

func TestProjectRepo_UpdateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := repo.SaveProject(ctx, &domain.Project{ID: id, Name: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("SaveProject(%s) failed: %v", id, err)
		}
	}

	p, _ := repo.GetProject(ctx, "a")
	p.Steps = []*domain.Step{{ID: "s0", Event: domain.StepEventClick, Locator: "#x"}}
	if err := repo.UpdateProject(ctx, p); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}
	if got, _ := repo.GetProject(ctx, "a"); len(got.Steps) != 1 {
		t.Errorf("update not persisted: %+v", got)
	}

	list, err := repo.ListProjects(ctx)
	if err != nil || len(list) != 2 {
		t.Errorf("ListProjects = %d entries, %v, want 2", len(list), err)
	}
}

func TestProjectRepo_MissingProject(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.GetProject(ctx, "nope")
	if err != nil || got != nil {
		t.Errorf("GetProject(missing) = %v, %v, want nil, nil", got, err)
	}
	if err := repo.UpdateProject(ctx, &domain.Project{ID: "nope"}); !errors.Is(err, storage.ErrProjectNotFound) {
		t.Errorf("UpdateProject err = %v, want ErrProjectNotFound", err)
	}
	if err := repo.DeleteProject(ctx, "nope"); !errors.Is(err, storage.ErrProjectNotFound) {
		t.Errorf("DeleteProject err = %v, want ErrProjectNotFound", err)
	}
}

func TestProjectRepo_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_ = repo.SaveProject(ctx, &domain.Project{ID: "proj-1", Name: "x", CreatedAt: time.Now()})
	if err := repo.DeleteProject(ctx, "proj-1"); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if got, _ := repo.GetProject(ctx, "proj-1"); got != nil {
		t.Error("project survived deletion")
	}
}
