// Package application runs schedule rebuilds: a fixed stage order from
// series materialization through placement and audit, coordinated per user
// so concurrent triggers coalesce instead of racing.
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditapp "github.com/qzwhatnext/qzwhatnext/internal/audit/application"
	auditdomain "github.com/qzwhatnext/qzwhatnext/internal/audit/domain"
	identitydomain "github.com/qzwhatnext/qzwhatnext/internal/identity/domain"
	inferenceapp "github.com/qzwhatnext/qzwhatnext/internal/inference/application"
	inferencedomain "github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
	recurrenceapp "github.com/qzwhatnext/qzwhatnext/internal/recurrence/application"
	recurrencedomain "github.com/qzwhatnext/qzwhatnext/internal/recurrence/domain"
	"github.com/qzwhatnext/qzwhatnext/internal/scheduling/domain"
	sharedapp "github.com/qzwhatnext/qzwhatnext/internal/shared/application"
	taskdomain "github.com/qzwhatnext/qzwhatnext/internal/tasks/domain"
)

// AvailabilityProvider supplies external busy intervals for a rebuild.
// Implementations may serve a cached snapshot; when neither a live read
// nor a fresh-enough snapshot is possible they return an error of kind
// availability_unavailable and the rebuild aborts, keeping the last good
// schedule.
type AvailabilityProvider interface {
	BusyIntervals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyInterval, error)
}

// PipelineConfig carries the tunables of a rebuild.
type PipelineConfig struct {
	Horizon     time.Duration
	Granularity time.Duration
	Tier        domain.TierConfig
	Policy      inferenceapp.Policy
}

// Pipeline executes one full rebuild for one user. Stages run in a fixed
// order; every stage is deterministic given the same stored state, clock
// and availability snapshot.
type Pipeline struct {
	cfg          PipelineConfig
	users        identitydomain.UserRepository
	tasks        taskdomain.TaskRepository
	series       recurrencedomain.SeriesRepository
	timeBlocks   recurrencedomain.TimeBlockRepository
	blocks       domain.BlockRepository
	adapter      inferencedomain.Adapter
	availability AvailabilityProvider
	audit        *auditapp.Emitter
	uow          sharedapp.UnitOfWork
	logger       *slog.Logger
}

// NewPipeline wires a rebuild pipeline.
func NewPipeline(
	cfg PipelineConfig,
	users identitydomain.UserRepository,
	tasks taskdomain.TaskRepository,
	series recurrencedomain.SeriesRepository,
	timeBlocks recurrencedomain.TimeBlockRepository,
	blocks domain.BlockRepository,
	adapter inferencedomain.Adapter,
	availability AvailabilityProvider,
	audit *auditapp.Emitter,
	uow sharedapp.UnitOfWork,
	logger *slog.Logger,
) *Pipeline {
	if cfg.Horizon == 0 {
		cfg.Horizon = 7 * 24 * time.Hour
	}
	if cfg.Granularity == 0 {
		cfg.Granularity = 30 * time.Minute
	}
	if cfg.Tier.ImpactThreshold == 0 {
		cfg.Tier = domain.DefaultTierConfig()
	}
	if cfg.Policy.ConfidenceThreshold == 0 {
		cfg.Policy = inferenceapp.DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:          cfg,
		users:        users,
		tasks:        tasks,
		series:       series,
		timeBlocks:   timeBlocks,
		blocks:       blocks,
		adapter:      adapter,
		availability: availability,
		audit:        audit,
		uow:          uow,
		logger:       logger,
	}
}

// Overflowed names a task the placer could not fit and why.
type Overflowed struct {
	TaskID uuid.UUID
	Reason string
}

// RebuildResult summarizes one completed rebuild.
type RebuildResult struct {
	RebuildID  uuid.UUID
	Placed     int
	Overflowed []Overflowed
	Blocks     []*domain.ScheduledBlock
}

// Rebuild runs the full pipeline for one user at the given instant.
// trigger is a short token recorded in the audit trail (task_created,
// manual, calendar_change, tick, ...).
func (p *Pipeline) Rebuild(ctx context.Context, userID uuid.UUID, now time.Time, trigger string) (*RebuildResult, error) {
	user, err := p.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc := user.Location()
	horizonEnd := now.Add(p.cfg.Horizon)

	rebuildID := uuid.New()
	audit := p.audit.ForRebuild(rebuildID)
	result := &RebuildResult{RebuildID: rebuildID}

	// External availability is read before the transaction opens: a
	// provider failure must abort without touching stored blocks.
	external, err := p.availability.BusyIntervals(ctx, userID, now, horizonEnd)
	if err != nil {
		return nil, err
	}

	err = sharedapp.WithUnitOfWork(ctx, p.uow, func(txCtx context.Context) error {
		materializer := recurrenceapp.NewMaterializer(p.series, p.tasks, audit, p.logger)
		if _, err := materializer.Run(txCtx, userID, now, p.cfg.Horizon, loc); err != nil {
			return err
		}

		open, err := p.openTasks(txCtx, userID)
		if err != nil {
			return err
		}

		included, excluded := partitionExcluded(open)
		inferred, err := p.infer(txCtx, userID, included, audit)
		if err != nil {
			return err
		}

		ranked, err := p.assignTiers(txCtx, userID, open, now, inferred, audit)
		if err != nil {
			return err
		}
		ranked = domain.Rank(ranked, loc)

		existing, err := p.blocks.ListInWindow(txCtx, userID, now, horizonEnd)
		if err != nil {
			return err
		}

		busy, err := p.reservedBusy(txCtx, userID, now, horizonEnd, loc, external)
		if err != nil {
			return err
		}

		if err := p.place(txCtx, userID, now, horizonEnd, loc, ranked, existing, busy, audit, result); err != nil {
			return err
		}

		audit.Emit(userID, auditdomain.EventScheduleBuilt, userID, "schedule", auditdomain.Details{
			"trigger":    trigger,
			"placed":     result.Placed,
			"overflowed": len(result.Overflowed),
			"excluded":   len(excluded),
		})
		return audit.Flush(txCtx)
	})
	if err != nil {
		audit.Discard()
		return nil, err
	}

	p.logger.InfoContext(ctx, "schedule rebuilt",
		"user_id", userID,
		"rebuild_id", rebuildID,
		"trigger", trigger,
		"placed", result.Placed,
		"overflowed", len(result.Overflowed))
	return result, nil
}

func (p *Pipeline) openTasks(ctx context.Context, userID uuid.UUID) ([]*taskdomain.Task, error) {
	status := taskdomain.StatusOpen
	return p.tasks.List(ctx, userID, taskdomain.ListFilter{Status: &status})
}

// partitionExcluded splits tasks on the exclusion rules. Excluded tasks
// still flow through tiering and placement; they are only withheld from
// the inference adapter.
func partitionExcluded(tasks []*taskdomain.Task) (included, excluded []*taskdomain.Task) {
	for _, t := range tasks {
		if taskdomain.IsAIExcluded(t) {
			excluded = append(excluded, t)
			continue
		}
		included = append(included, t)
	}
	return included, excluded
}

// needsInference reports whether the adapter should see this task. Tasks
// whose attributes were already inferred or manually set are left alone.
func needsInference(t *taskdomain.Task) bool {
	return t.Category() == taskdomain.CategoryUnknown || t.DurationConfidence() == 0
}

// infer requests proposals for the included tasks and applies them under
// the acceptance policy. Returns the highest accepted confidence per task,
// used to gate automatic tier changes. Adapter failure is non-fatal: the
// affected tasks keep their defaults and the fallback is audited.
func (p *Pipeline) infer(ctx context.Context, userID uuid.UUID, included []*taskdomain.Task, audit *auditapp.Emitter) (map[uuid.UUID]float64, error) {
	confidences := make(map[uuid.UUID]float64)

	var snapshots []inferencedomain.TaskSnapshot
	byID := make(map[uuid.UUID]*taskdomain.Task)
	for _, t := range included {
		if !needsInference(t) {
			continue
		}
		byID[t.ID()] = t
		snapshots = append(snapshots, inferencedomain.TaskSnapshot{
			ID:       t.ID(),
			Title:    t.Title(),
			Notes:    t.Notes(),
			Category: string(t.Category()),
			Duration: t.EstimatedDuration(),
		})
	}
	if len(snapshots) == 0 {
		return confidences, nil
	}

	proposals, err := p.adapter.Propose(ctx, snapshots)
	if err != nil {
		p.logger.WarnContext(ctx, "inference unavailable, applying defaults",
			"user_id", userID, "tasks", len(snapshots), "error", err)
		for _, snap := range snapshots {
			audit.Emit(userID, auditdomain.EventAttributeInferred, snap.ID, "task", auditdomain.Details{
				"action": "defaults_applied",
				"reason": "inference_failed",
			})
		}
		return confidences, nil
	}

	for id, set := range proposals {
		task, ok := byID[id]
		if !ok {
			// Proposals for tasks the adapter was never shown are dropped.
			continue
		}
		applied, err := inferenceapp.Apply(task, set, p.cfg.Policy)
		if err != nil {
			return nil, err
		}
		if len(applied.Accepted) == 0 {
			continue
		}
		if err := p.tasks.Save(ctx, task); err != nil {
			return nil, err
		}
		confidences[id] = applied.MaxConfidence

		details := auditdomain.Details{"action": "proposals_applied"}
		for name, proposal := range applied.Accepted {
			details[name] = proposal.Value
			details[name+"_confidence"] = proposal.Confidence
		}
		audit.Emit(userID, auditdomain.EventAttributeInferred, id, "task", details)
	}
	return confidences, nil
}

// assignTiers computes the governing tier for every open task and records
// changes. Inference-driven changes below the confirmation threshold are
// staged: the audit trail records the proposal but placement keeps the
// previous tier.
func (p *Pipeline) assignTiers(ctx context.Context, userID uuid.UUID, tasks []*taskdomain.Task, now time.Time, inferred map[uuid.UUID]float64, audit *auditapp.Emitter) ([]domain.RankedTask, error) {
	// A task unlocks another when some open task depends on it.
	openIDs := make(map[uuid.UUID]bool, len(tasks))
	for _, t := range tasks {
		openIDs[t.ID()] = true
	}
	unlocks := make(map[uuid.UUID]bool)
	for _, t := range tasks {
		for _, dep := range t.Dependencies() {
			if openIDs[dep] {
				unlocks[dep] = true
			}
		}
	}

	ranked := make([]domain.RankedTask, 0, len(tasks))
	for _, t := range tasks {
		assignment := domain.AssignTier(t, now, unlocks[t.ID()], p.cfg.Tier)
		effective := assignment.Tier

		previous := t.LastTier()
		if !assignment.Frozen && previous != 0 && previous != assignment.Tier {
			if conf, ok := inferred[t.ID()]; ok && conf < p.cfg.Policy.TierChangeConfirmThreshold {
				// Low-confidence inference proposed the move: stage it.
				audit.Emit(userID, auditdomain.EventTierChanged, t.ID(), "task", auditdomain.Details{
					"from":       previous,
					"to":         assignment.Tier,
					"reason":     assignment.Reason,
					"staged":     true,
					"confidence": conf,
				})
				effective = previous
			} else {
				t.RecordTier(assignment.Tier)
				if err := p.tasks.Save(ctx, t); err != nil {
					return nil, err
				}
				audit.Emit(userID, auditdomain.EventTierChanged, t.ID(), "task", auditdomain.Details{
					"from":   previous,
					"to":     assignment.Tier,
					"reason": assignment.Reason,
				})
			}
		} else if previous == 0 && !assignment.Frozen {
			t.RecordTier(assignment.Tier)
			if err := p.tasks.Save(ctx, t); err != nil {
				return nil, err
			}
		}

		ranked = append(ranked, domain.RankedTask{
			Task:       t,
			Tier:       effective,
			TierReason: assignment.Reason,
		})
	}
	return ranked, nil
}

// reservedBusy merges recurring time-block reservations into the external
// busy intervals.
func (p *Pipeline) reservedBusy(ctx context.Context, userID uuid.UUID, from, to time.Time, loc *time.Location, external []domain.BusyInterval) ([]domain.BusyInterval, error) {
	timeBlocks, err := p.timeBlocks.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	busy := append([]domain.BusyInterval(nil), external...)
	for _, tb := range timeBlocks {
		intervals, err := tb.ReservedIntervals(from, to, loc)
		if err != nil {
			return nil, err
		}
		for _, iv := range intervals {
			busy = append(busy, domain.BusyInterval{
				Interval: domain.Interval{Start: iv[0], End: iv[1]},
			})
		}
	}
	return busy, nil
}

// place replaces the system-scheduled blocks with a fresh placement.
// Pinned blocks survive; their tasks are not re-placed.
func (p *Pipeline) place(
	ctx context.Context,
	userID uuid.UUID,
	now, horizonEnd time.Time,
	loc *time.Location,
	ranked []domain.RankedTask,
	existing []*domain.ScheduledBlock,
	busy []domain.BusyInterval,
	audit *auditapp.Emitter,
	result *RebuildResult,
) error {
	var pinned []*domain.ScheduledBlock
	prevSystem := make(map[uuid.UUID][]domain.Interval)
	for _, block := range existing {
		if block.Pinned() {
			pinned = append(pinned, block)
			continue
		}
		prevSystem[block.TaskID()] = append(prevSystem[block.TaskID()], block.Interval())
		if err := p.blocks.Delete(ctx, userID, block.ID()); err != nil {
			return err
		}
	}

	free := domain.BuildAvailability(domain.Interval{Start: now, End: horizonEnd}, nil, busy)
	placer := domain.NewPlacer(domain.PlacerConfig{
		Now:         now,
		HorizonEnd:  horizonEnd,
		Granularity: p.cfg.Granularity,
		Location:    loc,
	}, free)

	pinnedTasks := make(map[uuid.UUID]bool)
	for _, block := range pinned {
		placer.RecordExisting(block)
		pinnedTasks[block.TaskID()] = true
	}

	pending := make(map[uuid.UUID]bool)
	var order []domain.RankedTask
	for _, rt := range ranked {
		if pinnedTasks[rt.Task.ID()] || rt.Task.ManuallyScheduled() {
			continue
		}
		pending[rt.Task.ID()] = true
		order = append(order, rt)
		placer.ExpectTask(rt.Task.ID())
	}

	// A task whose dependency has not had its turn yet defers until the
	// dependency resolves: rank never outruns dependency order.
	waiting := make(map[uuid.UUID][]domain.RankedTask)
	deferred := make(map[uuid.UUID]bool)

	var offer func(rt domain.RankedTask) error
	offer = func(rt domain.RankedTask) error {
		task := rt.Task
		for _, dep := range task.Dependencies() {
			if pending[dep] {
				waiting[dep] = append(waiting[dep], rt)
				deferred[task.ID()] = true
				return nil
			}
		}
		delete(pending, task.ID())
		delete(deferred, task.ID())

		placement := placer.Place(task, rt.TierReason)
		if err := p.recordPlacement(ctx, userID, rt, placement, prevSystem, audit, result); err != nil {
			return err
		}

		woken := waiting[task.ID()]
		delete(waiting, task.ID())
		for _, w := range woken {
			if !pending[w.Task.ID()] {
				continue
			}
			if err := offer(w); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rt := range order {
		if !pending[rt.Task.ID()] || deferred[rt.Task.ID()] {
			continue
		}
		if err := offer(rt); err != nil {
			return err
		}
	}

	// Whatever is still pending sits on a dependency cycle in stored data;
	// writes reject cycles, so this only catches corruption.
	for _, rt := range order {
		if !pending[rt.Task.ID()] {
			continue
		}
		delete(pending, rt.Task.ID())
		result.Overflowed = append(result.Overflowed, Overflowed{TaskID: rt.Task.ID(), Reason: domain.OverflowDepUnplaced})
		audit.Emit(userID, auditdomain.EventOverflowFlagged, rt.Task.ID(), "task", auditdomain.Details{
			"reason": domain.OverflowDepUnplaced,
			"tier":   rt.Tier,
		})
	}
	return nil
}

// recordPlacement persists one placement outcome and emits its audit
// trail: overflow_flagged for overflow, schedule_built with the decision
// reasons for a first placement, rescheduled when a re-placement moved.
func (p *Pipeline) recordPlacement(
	ctx context.Context,
	userID uuid.UUID,
	rt domain.RankedTask,
	placement domain.Placement,
	prevSystem map[uuid.UUID][]domain.Interval,
	audit *auditapp.Emitter,
	result *RebuildResult,
) error {
	task := rt.Task
	if !placement.Placed() {
		result.Overflowed = append(result.Overflowed, Overflowed{TaskID: task.ID(), Reason: placement.OverflowReason})
		audit.Emit(userID, auditdomain.EventOverflowFlagged, task.ID(), "task", auditdomain.Details{
			"reason": placement.OverflowReason,
			"tier":   rt.Tier,
		})
		return nil
	}

	for _, iv := range placement.Blocks {
		block, err := domain.NewScheduledBlock(userID, task.ID(), iv.Start, iv.End, domain.ScheduledBySystem)
		if err != nil {
			return err
		}
		if err := p.blocks.Save(ctx, block); err != nil {
			return err
		}
		result.Blocks = append(result.Blocks, block)
	}
	result.Placed++

	prev, had := prevSystem[task.ID()]
	switch {
	case !had:
		audit.Emit(userID, auditdomain.EventScheduleBuilt, task.ID(), "task", auditdomain.Details{
			"tier":    rt.Tier,
			"reasons": placement.Reasons,
			"blocks":  len(placement.Blocks),
		})
	case !sameIntervals(prev, placement.Blocks):
		audit.Emit(userID, auditdomain.EventRescheduled, task.ID(), "task", auditdomain.Details{
			"tier":    rt.Tier,
			"reasons": placement.Reasons,
			"blocks":  len(placement.Blocks),
		})
	}
	return nil
}

func sameIntervals(a, b []domain.Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}
