// Package workflow implements the Workflow Engine: it drives a production
// across the six pipeline stages, persisting every completion under a
// per-production exclusion lock, and coordinates with the Quota & Pricing
// Engine before the RENDER stage. The Engine holds its dependencies
// directly and loops stage-by-stage per production, rather than dispatching
// across a tenant-schema fan-out.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/dramaforge/internal/db"
	"github.com/wisbric/dramaforge/pkg/production"
	"github.com/wisbric/dramaforge/pkg/quota"
	"github.com/wisbric/dramaforge/pkg/stage"
	"github.com/wisbric/dramaforge/pkg/tenant"
)

// recorder is the subset of versionhistory.Recorder the engine depends on,
// kept as an interface here so pkg/workflow never imports pkg/versionhistory
// directly (internal/app wires the concrete type in).
type recorder interface {
	Snapshot(ctx context.Context, p production.Production) error
}

// lifecycleEvent is published to Redis on every committed production
// transition — a fire-and-forget notification channel for consumers (the
// notifier, any future live-poll UI) rather than a durable log.
type lifecycleEvent struct {
	ProductionID string `json:"production_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage"`
	Version      int64  `json:"version"`
}

func lifecycleChannel(id uuid.UUID) string {
	return "dramaforge:production:" + id.String() + ":events"
}

// ErrTransient marks a stage worker error as retryable under the stage's
// retry policy. A worker wraps its error with this
// sentinel to signal a transient failure; an unwrapped error is permanent
// and fails the stage immediately.
var ErrTransient = errors.New("workflow: transient stage error")

// ErrRenderRequiresExport is returned when Step/Advance would next execute
// the RENDER stage outside the Export Coordinator's confirm path. RENDER is
// the only quota-committing stage, so it never runs off a plain advance
// call; callers must estimate and confirm through the export endpoints,
// which invoke StepRender directly.
var ErrRenderRequiresExport = errors.New("workflow: render stage requires export confirmation")

// Mode selects how POST .../advance drives the engine.
type Mode string

const (
	ModeStep Mode = "step"
	ModeRun  Mode = "run"
)

// Engine drives productions through the Stage Registry, holding references
// to the Production Store, Artifact Store, Quota Engine, and Stage
// Registry.
type Engine struct {
	productions *production.Store
	registry    *stage.Registry
	quota       *quota.Service
	tenants     *tenant.Store
	beginner    quota.Beginner
	logger      *slog.Logger

	locks *keyedMutex

	cancelMu    sync.Mutex
	cancelFuncs map[uuid.UUID]context.CancelFunc

	recorder recorder
	rdb      *redis.Client
}

// SetRecorder attaches a version history recorder. Every successful status
// or stage transition is snapshotted under its new version number after the
// fact; a nil recorder (the default) disables snapshotting entirely.
func (e *Engine) SetRecorder(r recorder) {
	e.recorder = r
}

// SetPublisher attaches a Redis client used to publish lifecycle events
// after every committed transition. A nil client (the default) disables
// publishing entirely.
func (e *Engine) SetPublisher(rdb *redis.Client) {
	e.rdb = rdb
}

// publish announces p's new state on its lifecycle channel. Errors are
// logged only — a dropped pub/sub message never fails the caller's
// transition, since nothing durable depends on delivery.
func (e *Engine) publish(ctx context.Context, p production.Production) {
	if e.rdb == nil {
		return
	}
	payload, err := json.Marshal(lifecycleEvent{
		ProductionID: p.ID.String(),
		Status:       string(p.Status),
		CurrentStage: string(p.CurrentStage),
		Version:      p.Version,
	})
	if err != nil {
		e.logger.Warn("marshaling lifecycle event", "error", err, "production_id", p.ID)
		return
	}
	if err := e.rdb.Publish(ctx, lifecycleChannel(p.ID), payload).Err(); err != nil {
		e.logger.Warn("publishing lifecycle event", "error", err, "production_id", p.ID)
	}
}

// snapshot records p's current state in version history, logging rather
// than failing the caller's transition on error — a lost snapshot should
// never roll back a production's actual state.
func (e *Engine) snapshot(ctx context.Context, p production.Production) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Snapshot(ctx, p); err != nil {
		e.logger.Warn("recording version history snapshot", "error", err, "production_id", p.ID, "version", p.Version)
	}
}

// updateAndSnapshot persists p and, on success, records the resulting state
// in version history. Every status or stage transition in this file goes
// through here so no transition is missed.
func (e *Engine) updateAndSnapshot(ctx context.Context, p production.Production) (production.Production, error) {
	updated, err := e.productions.Update(ctx, p)
	if err == nil {
		e.snapshot(ctx, updated)
		e.publish(ctx, updated)
	}
	return updated, err
}

// NewEngine creates a Workflow Engine. beginner starts the transaction
// CommitDebit needs for its row-level lock;
// it is typically the same *pgxpool.Pool backing dbtx.
func NewEngine(dbtx db.DBTX, beginner quota.Beginner, registry *stage.Registry, logger *slog.Logger) *Engine {
	tenants := tenant.NewStore(dbtx)
	return &Engine{
		productions: production.NewStore(dbtx),
		registry:    registry,
		quota:       quota.NewService(tenants),
		tenants:     tenants,
		beginner:    beginner,
		logger:      logger,
		locks:       newKeyedMutex(),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start transitions a CREATED production to RUNNING. It does
// not itself execute a stage; call Step or RunToCompletion afterward.
func (e *Engine) Start(ctx context.Context, id uuid.UUID) (production.Production, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.productions.Load(ctx, id)
	if err != nil {
		return production.Production{}, err
	}
	if p.Status != production.StatusCreated {
		return production.Production{}, fmt.Errorf("workflow: cannot start production in status %s", p.Status)
	}
	p.Status = production.StatusRunning
	return e.updateAndSnapshot(ctx, p)
}

// Step runs exactly the next unfinished stage and returns. On
// ErrVersionConflict it reloads and retries the whole step once, per the
// version-conflict recovery policy. If the next stage is RENDER, it returns
// ErrRenderRequiresExport without changing any state; only StepRender may
// execute that stage.
func (e *Engine) Step(ctx context.Context, id uuid.UUID) (production.Production, error) {
	return e.step(ctx, id, false)
}

// StepRender runs the next stage even when it is RENDER. Reserved for the
// Export Coordinator's confirm phase, which has already re-checked the
// trigger-export capability and the cost estimate before calling this.
func (e *Engine) StepRender(ctx context.Context, id uuid.UUID) (production.Production, error) {
	return e.step(ctx, id, true)
}

func (e *Engine) step(ctx context.Context, id uuid.UUID, allowRender bool) (production.Production, error) {
	p, err := e.stepOnce(ctx, id, allowRender)
	if errors.Is(err, production.ErrVersionConflict) {
		return e.stepOnce(ctx, id, allowRender)
	}
	return p, err
}

func (e *Engine) stepOnce(ctx context.Context, id uuid.UUID, allowRender bool) (production.Production, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	return e.runStage(ctx, id, allowRender)
}

// RunToCompletion loops Step until the production reaches a terminal
// status, a pause is observed, or the next stage is RENDER — at which
// point it stops and returns the production as-is, still RUNNING, for the
// caller to hand off to the Export Coordinator.
func (e *Engine) RunToCompletion(ctx context.Context, id uuid.UUID) (production.Production, error) {
	for {
		p, err := e.step(ctx, id, false)
		if errors.Is(err, ErrRenderRequiresExport) {
			return p, nil
		}
		if err != nil {
			return p, err
		}
		if p.Status != production.StatusRunning {
			return p, nil
		}
	}
}

// Advance implements the POST .../advance endpoint's {mode: step|run}
// contract, starting the production first if it is still
// CREATED. Neither mode ever runs RENDER; see Step.
func (e *Engine) Advance(ctx context.Context, id uuid.UUID, mode Mode) (production.Production, error) {
	p, err := e.productions.Load(ctx, id)
	if err != nil {
		return production.Production{}, err
	}
	if p.Status == production.StatusCreated {
		if _, err := e.Start(ctx, id); err != nil {
			return production.Production{}, err
		}
	}
	if mode == ModeRun {
		return e.RunToCompletion(ctx, id)
	}
	return e.Step(ctx, id)
}

// runStage executes the per-step stage algorithm. The caller must already
// hold the per-production lock. RENDER only runs when allowRender is set,
// since it is the one stage that commits quota.
func (e *Engine) runStage(ctx context.Context, id uuid.UUID, allowRender bool) (production.Production, error) {
	p, err := e.productions.Load(ctx, id)
	if err != nil {
		return production.Production{}, err
	}

	if p.Status != production.StatusRunning && p.Status != production.StatusCreated {
		return p, nil
	}

	st := p.CurrentStage
	if st == stage.Terminal {
		p.Status = production.StatusCompleted
		return e.updateAndSnapshot(ctx, p)
	}

	if st == stage.Render && !allowRender {
		return p, ErrRenderRequiresExport
	}

	entry, ok := e.registry.Get(st)
	if !ok {
		return production.Production{}, fmt.Errorf("workflow: no registry entry for stage %s", st)
	}

	input, err := entry.InputSelector(&p)
	if err != nil {
		if errors.Is(err, stage.ErrMissingPrerequisite) {
			return e.fail(ctx, p, st, "MissingPrerequisite", err)
		}
		return production.Production{}, err
	}

	if entry.IsSkippable(&p) {
		if err := p.StageOutputs.Set(st, emptyOutputFor(st)); err != nil {
			return production.Production{}, err
		}
		p.CurrentStage = stage.Next(st)
		return e.updateAndSnapshot(ctx, p)
	}

	var cost *float64
	var quotaConsumed float64
	if st == stage.Render {
		acct, err := e.tenants.GetByID(ctx, p.TenantID)
		if err != nil {
			return production.Production{}, err
		}
		est, err := e.quota.CommitDebit(ctx, e.beginner, p.TenantID, acct.Tier, p.Config.TargetMinutes)
		if err != nil {
			return e.fail(ctx, p, st, "InsufficientQuota", err)
		}
		cost = &est.TotalCost
		quotaConsumed = est.QuotaConsumed
	}

	output, err := e.invoke(ctx, id, entry, input)
	if err != nil {
		if st == stage.Render && cost != nil {
			if refundErr := e.quota.Refund(ctx, p.TenantID, quotaConsumed); refundErr != nil {
				e.logger.Warn("refunding quota after failed render", "error", refundErr, "production_id", id)
			}
		}
		return e.fail(ctx, p, st, "StagePermanent", err)
	}

	if err := p.StageOutputs.Set(st, output); err != nil {
		return production.Production{}, err
	}
	if cost != nil {
		p.LastRenderCost = cost
	}
	p.CurrentStage = stage.Next(st)
	return e.updateAndSnapshot(ctx, p)
}

// invoke runs entry.Worker under its retry policy and per-attempt timeout
//.
func (e *Engine) invoke(ctx context.Context, id uuid.UUID, entry stage.Entry, input any) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= entry.Retry.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, entry.Retry.Timeout)
		e.setCancelFunc(id, cancel)

		output, err := entry.Worker.Run(attemptCtx, input)
		timedOut := attemptCtx.Err() == context.DeadlineExceeded
		cancel()
		e.clearCancelFunc(id)

		if err == nil {
			return output, nil
		}
		lastErr = err
		if !timedOut && !errors.Is(err, ErrTransient) {
			return nil, err
		}
		if attempt < entry.Retry.MaxAttempts {
			time.Sleep(entry.Retry.BackoffBase * time.Duration(1<<uint(attempt-1)))
		}
	}
	return nil, lastErr
}

func (e *Engine) setCancelFunc(id uuid.UUID, cancel context.CancelFunc) {
	e.cancelMu.Lock()
	e.cancelFuncs[id] = cancel
	e.cancelMu.Unlock()
}

func (e *Engine) clearCancelFunc(id uuid.UUID) {
	e.cancelMu.Lock()
	delete(e.cancelFuncs, id)
	e.cancelMu.Unlock()
}

func (e *Engine) fail(ctx context.Context, p production.Production, st stage.ID, kind string, cause error) (production.Production, error) {
	p.Status = production.StatusFailed
	p.LastError = &production.ErrorInfo{
		Stage:      st,
		Kind:       kind,
		Message:    cause.Error(),
		OccurredAt: time.Now().UTC(),
	}
	return e.updateAndSnapshot(ctx, p)
}

// Pause cooperatively stops a RUNNING production. Because
// it takes the same per-production lock a mid-execution stage holds,
// acquiring it inherently waits for that stage to finish or fail before
// the pause is recorded.
func (e *Engine) Pause(ctx context.Context, id uuid.UUID) (production.Production, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.productions.Load(ctx, id)
	if err != nil {
		return production.Production{}, err
	}
	if p.Status != production.StatusRunning {
		return p, nil
	}
	p.Status = production.StatusPaused
	return e.updateAndSnapshot(ctx, p)
}

// Resume transitions a PAUSED production back to RUNNING.
func (e *Engine) Resume(ctx context.Context, id uuid.UUID) (production.Production, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.productions.Load(ctx, id)
	if err != nil {
		return production.Production{}, err
	}
	if p.Status != production.StatusPaused {
		return production.Production{}, fmt.Errorf("workflow: cannot resume production in status %s", p.Status)
	}
	p.Status = production.StatusRunning
	return e.updateAndSnapshot(ctx, p)
}

// Cancel sets status CANCELLED and signals any in-flight worker's context
// to abort. Idempotent: a second Cancel on an already-cancelled
// or already-terminal production is a no-op.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (production.Production, error) {
	e.cancelMu.Lock()
	if cancel, ok := e.cancelFuncs[id]; ok {
		cancel()
	}
	e.cancelMu.Unlock()

	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.productions.Load(ctx, id)
	if err != nil {
		return production.Production{}, err
	}
	switch p.Status {
	case production.StatusCancelled, production.StatusCompleted, production.StatusFailed:
		return p, nil
	}
	p.Status = production.StatusCancelled
	return e.updateAndSnapshot(ctx, p)
}

func emptyOutputFor(id stage.ID) any {
	switch id {
	case stage.LipSync:
		return stage.LipSyncOutput{Skipped: true}
	default:
		panic("workflow: stage " + string(id) + " has no empty-output policy")
	}
}
