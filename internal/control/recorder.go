// Package control wires the engines, collaborators and HTTP surface into one
// runnable application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/webtape/internal/core/config"
	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/events"
	"github.com/vietddude/webtape/internal/health"
	"github.com/vietddude/webtape/internal/infra/driver/cdp"
	redisclient "github.com/vietddude/webtape/internal/infra/redis"
	"github.com/vietddude/webtape/internal/infra/storage"
	"github.com/vietddude/webtape/internal/infra/storage/memory"
	"github.com/vietddude/webtape/internal/infra/storage/postgres"
	"github.com/vietddude/webtape/internal/infra/storage/sqlite"
	"github.com/vietddude/webtape/internal/recovery"
	"github.com/vietddude/webtape/internal/replay"
	"github.com/vietddude/webtape/internal/session"
	"github.com/vietddude/webtape/internal/telemetry"
)

// executorBootstrap is the minimal in-page bridge. The real recorder script
// ships with the browser extension; this fallback lets replay work against
// pages that never saw the extension.
const executorBootstrap = `(function(){
  if (window.__webtape) return true;
  window.__webtape = {
    dispatch: function(d) {
      try {
        if (d.action === "execute_step") {
          var p = d.payload || {};
          if (p.event === "open") { location.href = p.value; return {ok:true}; }
          var el = document.querySelector(p.locator);
          if (!el) return {ok:false, error:"element not found: " + p.locator};
          if (p.event === "click") { el.click(); return {ok:true}; }
          if (p.event === "input") { el.value = p.value; el.dispatchEvent(new Event("input",{bubbles:true})); return {ok:true}; }
          if (p.event === "key_enter") { el.dispatchEvent(new KeyboardEvent("keydown",{key:"Enter",bubbles:true})); return {ok:true}; }
          return {ok:false, error:"unsupported event: " + p.event};
        }
        return {ok:true};
      } catch (e) { return {ok:false, error:String(e)}; }
    }
  };
  return true;
})()`

// Recorder is the main application struct that manages the engine lifecycle.
type Recorder struct {
	cfg          *config.AppConfig
	orchestrator *session.Orchestrator
	errEngine    *recovery.Engine
	telemetry    *telemetry.Engine
	runner       *replay.Runner
	store        storage.ProjectRepository
	driver       *cdp.Driver
	queue        *redisclient.ReplayQueue
	redisClient  *redisclient.Client
	db           *postgres.DB
	localStore   *sqlite.ProjectRepo
	healthServer *health.Server
	log          *slog.Logger

	workerDone chan struct{}
}

// NewRecorder creates a Recorder with all dependencies initialized.
func NewRecorder(cfg *config.AppConfig) (*Recorder, error) {
	r := &Recorder{
		cfg: cfg,
		log: slog.With("component", "control"),
	}

	// 1. Storage: postgres if configured, otherwise a local SQLite file,
	// otherwise memory.
	switch {
	case cfg.Database.URL != "":
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		r.db = db
		r.store = postgres.NewProjectRepo(db)
		slog.Info("Using PostgreSQL storage")
	case cfg.Storage.Path != "":
		local, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to init sqlite store: %w", err)
		}
		r.localStore = local
		r.store = local
		slog.Info("Using SQLite storage", "path", cfg.Storage.Path)
	default:
		r.store = memory.NewProjectRepo()
		slog.Info("Using Memory storage")
	}

	// 2. Tab driver
	r.driver = cdp.New(cfg.Driver, executorBootstrap)

	// 3. Engines
	bus := events.NewBus()
	r.errEngine = recovery.NewEngine(cfg.Recovery, bus)
	r.telemetry = telemetry.NewEngine(cfg.Telemetry, bus)
	r.orchestrator = session.NewOrchestrator(cfg.Session, r.driver, r.store, bus)
	r.runner = replay.NewRunner(cfg.Replay, r.driver, r.errEngine, r.telemetry)

	// A mid-run navigation wipes the in-page executor; the next step then
	// surfaces as a missing element. Re-injecting gives the rest of the run a
	// live executor. Also registered for injection itself, which only fires
	// when the operator relaxes that category's abort policy.
	reinject := func(ctx context.Context, _ *domain.ExecutionError, ec recovery.ErrorContext) error {
		contextID, _ := ec.Data["context_id"].(string)
		if contextID == "" {
			return errors.New("no context id in error context")
		}
		ok, err := r.driver.EnsureExecutor(ctx, contextID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("reinjection failed")
		}
		return nil
	}
	r.errEngine.RegisterStrategy(domain.CategoryElementNotFound, "reinject_executor", reinject)
	r.errEngine.RegisterStrategy(domain.CategoryInjection, "reinject_executor", reinject)

	// 4. Replay queue (optional)
	var queueLen health.QueueLenFunc
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		r.redisClient = client
		r.queue = redisclient.NewReplayQueue(client)
		queueLen = r.queue.Len
		slog.Info("Replay queue enabled")
	}

	// 5. Health + API server
	monitor := health.NewMonitor(r.orchestrator, r.errEngine, r.telemetry, queueLen)
	r.healthServer = health.NewServer(monitor, cfg.Server.Port, r.apiHandler())

	return r, nil
}

// Start launches the HTTP server and, when a queue is configured, the replay
// worker.
func (r *Recorder) Start(ctx context.Context) error {
	go func() {
		if err := r.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("HTTP server failed", "error", err)
		}
	}()

	if r.queue != nil {
		r.workerDone = make(chan struct{})
		go r.runQueueWorker(ctx)
	}

	r.log.Info("Recorder started", "port", r.cfg.Server.Port)
	return nil
}

// runQueueWorker pulls queued replay jobs and executes them serially.
func (r *Recorder) runQueueWorker(ctx context.Context) {
	defer close(r.workerDone)
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := r.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("Replay queue poll failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		project, err := r.store.GetProject(ctx, job.ProjectID)
		if err != nil || project == nil {
			r.log.Warn("Queued replay references unknown project",
				"job_id", job.ID, "project_id", job.ProjectID, "error", err)
			continue
		}

		report, err := r.runner.Run(ctx, project, job.ContextID, job.Rows)
		if err != nil {
			r.log.Warn("Queued replay failed", "job_id", job.ID, "error", err)
			continue
		}
		r.log.Info("Queued replay finished",
			"job_id", job.ID, "success", report.Success,
			"steps_passed", report.StepsPassed, "steps_failed", report.StepsFailed)
	}
}

// Stop shuts the application down, stopping any active session first.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.orchestrator.Session() != nil {
		if _, err := r.orchestrator.Stop(ctx); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
			r.log.Warn("Failed to stop active session", "error", err)
		}
	}
	r.orchestrator.Close()

	if err := r.healthServer.Stop(ctx); err != nil {
		r.log.Warn("HTTP server shutdown failed", "error", err)
	}
	if r.workerDone != nil {
		select {
		case <-r.workerDone:
		case <-ctx.Done():
		}
	}

	r.driver.Close()
	if r.redisClient != nil {
		_ = r.redisClient.Close()
	}
	if r.localStore != nil {
		_ = r.localStore.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
	return nil
}

// Orchestrator exposes the session engine (used by the CLI).
func (r *Recorder) Orchestrator() *session.Orchestrator { return r.orchestrator }

// Runner exposes the replay engine (used by the CLI).
func (r *Recorder) Runner() *replay.Runner { return r.runner }

// Store exposes the project repository (used by the CLI).
func (r *Recorder) Store() storage.ProjectRepository { return r.store }
