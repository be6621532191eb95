// Package session owns the recording session lifecycle: one state machine per
// orchestrator, at most one session in a non-terminal state at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/events"
	"github.com/vietddude/webtape/internal/infra/driver"
	"github.com/vietddude/webtape/internal/infra/storage"
	"github.com/vietddude/webtape/internal/metrics"
)

// Config controls session limits and the auto-save cadence.
type Config struct {
	MaxSteps         int           `yaml:"max_steps"`
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxSteps:         500,
		AutoSaveInterval: 5 * time.Second,
	}
}

// Orchestrator drives one recording session at a time. It exclusively owns
// the active session; collaborators never mutate it directly.
type Orchestrator struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	session *domain.Session
	dirty   bool

	drv   driver.TabDriver
	store storage.ProjectRepository
	bus   *events.Bus
	log   *slog.Logger

	autosaveStop chan struct{}
	autosaveWG   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator in the idle state.
func NewOrchestrator(cfg Config, drv driver.TabDriver, store storage.ProjectRepository, bus *events.Bus) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.AutoSaveInterval < 0 {
		cfg.AutoSaveInterval = 0
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Orchestrator{
		cfg:   cfg,
		state: domain.SessionStateIdle,
		drv:   drv,
		store: store,
		bus:   bus,
		log:   slog.With("component", "session"),
	}
}

// Subscribe registers an event subscriber and returns its unsubscribe func.
func (o *Orchestrator) Subscribe(fn events.Subscriber) func() {
	return o.bus.Subscribe(fn)
}

// transition moves the state machine, enforcing the transition table.
// Caller must hold the lock.
func (o *Orchestrator) transition(to State) error {
	if !CanTransition(o.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.state, to)
	}
	o.state = to
	return nil
}

// Start creates a new session and begins recording in the given context.
// startURL may be empty, in which case the context's current URL is used.
func (o *Orchestrator) Start(ctx context.Context, projectID, contextID, startURL string) (*domain.Session, error) {
	o.mu.Lock()
	if !isTerminal(o.state) {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrSessionActive, o.state)
	}
	if err := o.transition(domain.SessionStateStarting); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.mu.Unlock()

	// Resolve the starting location outside the lock; the driver may block.
	if startURL == "" {
		info, err := o.drv.ContextInfo(ctx, contextID)
		if err != nil {
			return nil, o.failStart(fmt.Errorf("failed to resolve start url: %w", err))
		}
		startURL = info.URL
	}

	sess := &domain.Session{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		ContextID:  contextID,
		StartURL:   startURL,
		CurrentURL: startURL,
		State:      domain.SessionStateStarting,
		StartedAt:  time.Now(),
		Steps: []*domain.Step{{
			ID:         uuid.New().String(),
			Event:      domain.StepEventOpen,
			Value:      startURL,
			Label:      "open " + startURL,
			CapturedAt: time.Now(),
		}},
	}

	o.mu.Lock()
	o.session = sess
	o.mu.Unlock()

	ok, err := o.drv.EnsureExecutor(ctx, contextID)
	if err != nil {
		return nil, o.failStart(fmt.Errorf("executor injection failed: %w", err))
	}
	if !ok {
		return nil, o.failStart(fmt.Errorf("executor injection failed for context %s", contextID))
	}

	if _, err := o.drv.Send(ctx, contextID, driver.Directive{Action: driver.ActionRecordStart}); err != nil {
		return nil, o.failStart(fmt.Errorf("failed to send start directive: %w", err))
	}

	o.mu.Lock()
	if err := o.transition(domain.SessionStateRecording); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	sess.State = domain.SessionStateRecording
	o.armAutoSave()
	snapshot := copySession(sess)
	o.mu.Unlock()

	metrics.ActiveSessions.Set(1)
	o.bus.Publish(domain.Event{
		Type:      domain.EventSessionStarted,
		SessionID: sess.ID,
		Data:      map[string]any{"project_id": projectID, "start_url": startURL},
	})
	o.log.Info("Session started", "session_id", sess.ID, "project_id", projectID, "url", startURL)

	return snapshot, nil
}

// failStart tears the half-started session down, emits an error event and
// propagates the cause to the caller.
func (o *Orchestrator) failStart(cause error) error {
	o.mu.Lock()
	sessID := ""
	if o.session != nil {
		sessID = o.session.ID
	}
	o.state = domain.SessionStateStopped
	o.session = nil
	o.mu.Unlock()

	metrics.ActiveSessions.Set(0)
	o.bus.Publish(domain.Event{
		Type:      domain.EventError,
		SessionID: sessID,
		Data:      map[string]any{"message": cause.Error()},
	})
	o.log.Error("Session start failed", "error", cause)
	return cause
}

// Stop ends the active session, persists its steps and releases it. A failed
// final persist never blocks the stop; it is stamped onto the session and
// reflected in the result's success flag.
func (o *Orchestrator) Stop(ctx context.Context) (*domain.SessionResult, error) {
	o.mu.Lock()
	if o.session == nil || o.state == domain.SessionStateStopped {
		o.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if err := o.transition(domain.SessionStateStopping); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	sess := o.session
	sess.State = domain.SessionStateStopping
	contextID := sess.ContextID
	o.disarmAutoSave()
	o.mu.Unlock()

	// Best-effort: the context may already be gone.
	if _, err := o.drv.Send(ctx, contextID, driver.Directive{Action: driver.ActionRecordStop}); err != nil {
		o.log.Warn("Failed to send stop directive", "session_id", sess.ID, "error", err)
	}

	if err := o.persistSteps(ctx); err != nil {
		o.log.Error("Failed to persist steps on stop", "session_id", sess.ID, "error", err)
		o.mu.Lock()
		sess.LastError = &domain.ExecutionError{
			ID:        uuid.New().String(),
			Category:  domain.CategoryUnknown,
			Severity:  domain.SeverityError,
			Message:   err.Error(),
			Cause:     err,
			Timestamp: time.Now(),
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	if err := o.transition(domain.SessionStateStopped); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	sess.State = domain.SessionStateStopped
	sess.EndedAt = time.Now()

	result := &domain.SessionResult{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		Success:   sess.LastError == nil,
		Steps:     copySteps(sess.Steps),
		Duration:  sess.EndedAt.Sub(sess.StartedAt),
		LastError: sess.LastError,
	}
	o.session = nil
	o.dirty = false
	o.mu.Unlock()

	metrics.ActiveSessions.Set(0)
	o.bus.Publish(domain.Event{
		Type:      domain.EventSessionStopped,
		SessionID: result.SessionID,
		Data: map[string]any{
			"success":     result.Success,
			"step_count":  len(result.Steps),
			"duration_ms": result.Duration.Milliseconds(),
		},
	})
	o.log.Info("Session stopped",
		"session_id", result.SessionID, "steps", len(result.Steps), "duration", result.Duration)

	return result, nil
}

// Pause suspends capture. Valid only while recording.
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	if err := o.transition(domain.SessionStatePaused); err != nil {
		o.mu.Unlock()
		return err
	}
	o.session.State = domain.SessionStatePaused
	sessID, contextID := o.session.ID, o.session.ContextID
	o.mu.Unlock()

	if _, err := o.drv.Send(ctx, contextID, driver.Directive{Action: driver.ActionRecordPause}); err != nil {
		o.log.Warn("Failed to send pause directive", "session_id", sessID, "error", err)
	}
	o.bus.Publish(domain.Event{Type: domain.EventSessionPaused, SessionID: sessID})
	return nil
}

// Resume continues capture. Valid only while paused.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	if o.state != domain.SessionStatePaused {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.state, domain.SessionStateRecording)
	}
	o.state = domain.SessionStateRecording
	o.session.State = domain.SessionStateRecording
	sessID, contextID := o.session.ID, o.session.ContextID
	o.mu.Unlock()

	if _, err := o.drv.Send(ctx, contextID, driver.Directive{Action: driver.ActionRecordResume}); err != nil {
		o.log.Warn("Failed to send resume directive", "session_id", sessID, "error", err)
	}
	o.bus.Publish(domain.Event{Type: domain.EventSessionResumed, SessionID: sessID})
	return nil
}

// HandleStepCaptured appends a captured interaction. Returns nil without
// error when the orchestrator is not recording or the step ceiling is
// reached; capture is lossy by design, never fatal.
func (o *Orchestrator) HandleStepCaptured(data domain.CaptureData) *domain.Step {
	o.mu.Lock()
	if o.state != domain.SessionStateRecording || o.session == nil {
		o.mu.Unlock()
		return nil
	}
	if len(o.session.Steps) >= o.cfg.MaxSteps {
		o.mu.Unlock()
		o.log.Warn("Step ceiling reached, capture rejected", "max_steps", o.cfg.MaxSteps)
		return nil
	}

	step := &domain.Step{
		ID:         uuid.New().String(),
		Event:      data.Event,
		Locator:    data.Locator,
		Value:      data.Value,
		Label:      data.Label,
		CapturedAt: time.Now(),
	}
	o.session.Steps = append(o.session.Steps, step)
	if data.URL != "" {
		o.session.CurrentURL = data.URL
	}
	o.dirty = true
	sessID := o.session.ID
	o.mu.Unlock()

	metrics.StepsCaptured.WithLabelValues(string(step.Event)).Inc()
	o.bus.Publish(domain.Event{
		Type:      domain.EventStepCaptured,
		SessionID: sessID,
		Data:      map[string]any{"step_id": step.ID, "event": string(step.Event), "label": step.Label},
	})
	return step
}

// DeleteLastStep removes the most recent step. The leading open step is
// protected; returns nil when fewer than two steps exist.
func (o *Orchestrator) DeleteLastStep() *domain.Step {
	o.mu.Lock()
	if o.session == nil || len(o.session.Steps) < 2 {
		o.mu.Unlock()
		return nil
	}
	idx := len(o.session.Steps) - 1
	o.mu.Unlock()
	return o.DeleteStepAt(idx)
}

// DeleteStepAt removes the step at the given index. Index 0 (the leading
// open step) can never be deleted; out-of-range indices return nil.
func (o *Orchestrator) DeleteStepAt(index int) *domain.Step {
	o.mu.Lock()
	if o.session == nil || len(o.session.Steps) < 2 {
		o.mu.Unlock()
		return nil
	}
	if index <= 0 || index >= len(o.session.Steps) {
		o.mu.Unlock()
		return nil
	}

	removed := o.session.Steps[index]
	o.session.Steps = append(o.session.Steps[:index], o.session.Steps[index+1:]...)
	o.dirty = true
	sessID := o.session.ID
	o.mu.Unlock()

	o.bus.Publish(domain.Event{
		Type:      domain.EventStepDeleted,
		SessionID: sessID,
		Data:      map[string]any{"step_id": removed.ID, "index": index},
	})
	return removed
}

// HandleContextNavigated records a page boundary. Ignored unless the handle
// matches the active session's context; a synthetic open step is appended
// only while recording.
func (o *Orchestrator) HandleContextNavigated(contextID, newURL string) {
	o.mu.Lock()
	if o.session == nil || o.session.ContextID != contextID {
		o.mu.Unlock()
		return
	}
	o.session.CurrentURL = newURL
	recording := o.state == domain.SessionStateRecording
	o.mu.Unlock()

	if !recording {
		return
	}
	o.HandleStepCaptured(domain.CaptureData{
		Event: domain.StepEventOpen,
		Value: newURL,
		Label: "open " + newURL,
		URL:   newURL,
	})
}

// HandleContextClosed stops the session when its context goes away. The stop
// is asynchronous and best-effort: the context is already gone, so a failing
// stop directive is expected and swallowed.
func (o *Orchestrator) HandleContextClosed(contextID string) {
	o.mu.Lock()
	if o.session == nil || o.session.ContextID != contextID {
		o.mu.Unlock()
		return
	}
	sessID := o.session.ID
	o.mu.Unlock()

	o.log.Info("Context closed, stopping session", "session_id", sessID, "context_id", contextID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := o.Stop(ctx); err != nil {
			o.log.Warn("Stop after context close failed", "session_id", sessID, "error", err)
		}
	}()
}

// -----------------------------------------------------------------------------
// Auto-save
// -----------------------------------------------------------------------------

// armAutoSave starts the periodic dirty-flag flush. Caller must hold the lock.
func (o *Orchestrator) armAutoSave() {
	if o.cfg.AutoSaveInterval <= 0 || o.autosaveStop != nil {
		return
	}
	stop := make(chan struct{})
	o.autosaveStop = stop
	o.autosaveWG.Add(1)
	go func() {
		defer o.autosaveWG.Done()
		ticker := time.NewTicker(o.cfg.AutoSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.autoSaveTick()
			}
		}
	}()
}

// disarmAutoSave stops the timer. Caller must hold the lock.
func (o *Orchestrator) disarmAutoSave() {
	if o.autosaveStop != nil {
		close(o.autosaveStop)
		o.autosaveStop = nil
	}
}

// autoSaveTick flushes steps to the store when the dirty flag is set.
// Store failures are logged, never surfaced to capture callers.
func (o *Orchestrator) autoSaveTick() {
	o.mu.Lock()
	if !o.dirty || o.session == nil {
		o.mu.Unlock()
		return
	}
	o.dirty = false
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.persistSteps(ctx); err != nil {
		metrics.AutoSavesTotal.WithLabelValues("fail").Inc()
		o.log.Warn("Auto-save failed", "error", err)
		return
	}
	metrics.AutoSavesTotal.WithLabelValues("ok").Inc()
}

// persistSteps writes the current step list into the session's project.
func (o *Orchestrator) persistSteps(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	projectID := o.session.ProjectID
	startURL := o.session.StartURL
	steps := copySteps(o.session.Steps)
	o.mu.Unlock()

	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project %s: %w", projectID, err)
	}
	if project == nil {
		return fmt.Errorf("%w: %s", storage.ErrProjectNotFound, projectID)
	}

	project.Steps = steps
	project.StartURL = startURL
	project.UpdatedAt = time.Now()
	if err := o.store.UpdateProject(ctx, project); err != nil {
		return fmt.Errorf("failed to update project %s: %w", projectID, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Session returns a defensive copy of the active session, or nil.
func (o *Orchestrator) Session() *domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	return copySession(o.session)
}

// Steps returns a defensive copy of the active session's steps.
func (o *Orchestrator) Steps() []*domain.Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	return copySteps(o.session.Steps)
}

// StepCount returns the number of steps in the active session.
func (o *Orchestrator) StepCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return 0
	}
	return len(o.session.Steps)
}

// State returns the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsRecording reports whether capture is active.
func (o *Orchestrator) IsRecording() bool {
	return o.State() == domain.SessionStateRecording
}

// IsPaused reports whether the session is paused.
func (o *Orchestrator) IsPaused() bool {
	return o.State() == domain.SessionStatePaused
}

// Close releases the auto-save timer. Safe to call once, after Stop.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.disarmAutoSave()
	o.mu.Unlock()
	o.autosaveWG.Wait()
}

func copySession(s *domain.Session) *domain.Session {
	out := *s
	out.Steps = copySteps(s.Steps)
	return &out
}

func copySteps(steps []*domain.Step) []*domain.Step {
	out := make([]*domain.Step, len(steps))
	for i, st := range steps {
		cp := *st
		out[i] = &cp
	}
	return out
}
