package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultTickInterval = time.Minute

// Engine is the periodic batch runner: one tick selects candidates, runs
// handlers, emits deliveries and advances per-item state. Per-item failures
// are isolated; only a store outage aborts a tick.
type Engine struct {
	selector *CandidateSelector
	registry *Registry
	emitter  *DeliveryEmitter
	items    repository.ItemRepository
	runs     repository.RunRepository
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	now      func() time.Time
	newID    func() string
}

func NewEngine(
	selector *CandidateSelector,
	registry *Registry,
	emitter *DeliveryEmitter,
	items repository.ItemRepository,
	runs repository.RunRepository,
	interval time.Duration,
	logger *zap.Logger,
) (*Engine, error) {
	if selector == nil {
		return nil, fmt.Errorf("candidate selector is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("delivery emitter is required")
	}
	if items == nil {
		return nil, fmt.Errorf("item repository is required")
	}
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		selector: selector,
		registry: registry,
		emitter:  emitter,
		items:    items,
		runs:     runs,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial tick so overdue items do not wait for the first ticker edge.
	if err := e.Tick(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("initial escalation tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				e.logger.Error("escalation tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one full evaluation pass. A selector failure aborts the tick and
// the next scheduled tick retries; there is no local backoff loop.
func (e *Engine) Tick(ctx context.Context) error {
	started := e.now()
	run := &domain.EscalationRun{
		ID:        e.newID(),
		Status:    domain.RunStatusRunning,
		StartedAt: started,
	}
	runPersisted := e.createRun(ctx, run)

	candidates, scanned, err := e.selector.Select(ctx, started)
	if err != nil {
		run.Status = domain.RunStatusPartialFailure
		e.finishRun(ctx, run, runPersisted)
		return fmt.Errorf("candidate selection failed: %w", err)
	}
	run.Scanned = scanned

	for i := range candidates {
		cand := candidates[i]

		fired, err := e.processCandidate(ctx, cand)
		switch {
		case err != nil:
			run.Failed++
			e.logger.Error("escalation failed, threshold retries next tick",
				zap.String("itemId", cand.Item.ID),
				zap.String("category", cand.Item.Category.String()),
				zap.String("threshold", cand.Threshold.String()),
				zap.Error(err),
			)
		case fired:
			run.Fired++
			e.metrics.IncThresholdFired(e.emitter.thresholdLabel(cand))
		default:
			run.Skipped++
			e.metrics.IncItemSkipped("missing_fields")
		}
	}

	run.Status = domain.RunStatusCompleted
	if run.Failed > 0 {
		run.Status = domain.RunStatusPartialFailure
	}
	e.finishRun(ctx, run, runPersisted)

	e.metrics.IncTick()
	e.metrics.ObserveTickDuration(e.now().Sub(started))
	e.metrics.AddCandidatesSelected(len(candidates))

	e.logger.Info("escalation tick completed",
		zap.Int("scanned", run.Scanned),
		zap.Int("candidates", len(candidates)),
		zap.Int("fired", run.Fired),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
	)

	return nil
}

func (e *Engine) processCandidate(ctx context.Context, cand Candidate) (bool, error) {
	handler := e.registry.Dispatch(cand.Item.Category)

	content, err := handler.Handle(ctx, cand)
	if err != nil {
		return false, fmt.Errorf("handler failed: %w", err)
	}
	if content == nil {
		// Required payload fields missing; deliberate silent no-op.
		return false, nil
	}

	if err := e.emitter.Emit(ctx, cand, content); err != nil {
		return false, fmt.Errorf("delivery emit failed: %w", err)
	}

	state := NextState(cand, e.now())
	applied, err := e.items.ApplyEscalation(ctx, cand.Item.ID, cand.Item.State.EscalationLevel, state, !cand.StartingNow, e.now())
	if err != nil {
		return false, fmt.Errorf("state update failed: %w", err)
	}
	if !applied {
		// Another instance advanced the item between select and apply.
		e.logger.Info("escalation state already advanced elsewhere",
			zap.String("itemId", cand.Item.ID),
			zap.Int("fromLevel", cand.Item.State.EscalationLevel),
		)
	}

	return true, nil
}

// Run bookkeeping is operational telemetry; its failures never block a tick.
func (e *Engine) createRun(ctx context.Context, run *domain.EscalationRun) bool {
	if e.runs == nil {
		return false
	}
	if err := e.runs.Create(ctx, run); err != nil {
		e.logger.Warn("failed to record escalation run", zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) finishRun(ctx context.Context, run *domain.EscalationRun, persisted bool) {
	if e.runs == nil || !persisted {
		return
	}
	if err := e.runs.Finish(ctx, run, e.now()); err != nil {
		e.logger.Warn("failed to finalize escalation run", zap.Error(err))
	}
}
