package config

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Qwlouse/configv2/pkg/activity"
)

// EvaluationRun holds every piece of mutable evaluation state: the working
// copy of the entry store, the tier cursor, the memo table and the
// in-progress set. Keeping this explicit (instead of ambient globals) lets
// independent evaluations run without interference.
type EvaluationRun struct {
	id          string
	store       *Store
	cfg         evalConfig
	evaluator   Evaluator
	emitter     *activity.Emitter
	currentTier Tier
	memo        map[memoKey]resolved
	inProgress  map[string]bool
	chain       []string
}

type memoKey struct {
	path   string
	tier   Tier
	cutoff uint64
}

type resolved struct {
	value  any
	winner candidate
}

func newEvaluationRun(seed *Store, cfg evalConfig) *EvaluationRun {
	id := uuid.NewString()
	return &EvaluationRun{
		id:         id,
		store:      seed.clone(),
		cfg:        cfg,
		emitter:    activity.NewEmitter(cfg.activityHooks, activity.Config{Enabled: true, RunID: id}),
		memo:       make(map[memoKey]resolved),
		inProgress: make(map[string]bool),
	}
}

// ID returns the run identifier used in emitted events.
func (run *EvaluationRun) ID() string { return run.id }

func (run *EvaluationRun) resolveEvaluator() Evaluator {
	if run.evaluator != nil {
		return run.evaluator
	}
	if run.cfg.evaluator != nil {
		run.evaluator = run.cfg.evaluator
		return run.evaluator
	}
	var exprOpts []ExprEvaluatorOption
	if cache := run.cfg.programCache; cache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(cache))
	}
	if registry := run.cfg.functions; registry != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(registry))
	}
	run.evaluator = NewExprEvaluator(exprOpts...)
	return run.evaluator
}

func (run *EvaluationRun) logger() EvaluatorLogger {
	if run.cfg.logger != nil {
		return run.cfg.logger
	}
	return noopEvaluatorLogger{}
}

// executeScopes drives the scheduler: tiers from strongest to weakest, and
// within a tier every registration in order. Entries appended by a scope are
// immediately visible to later statements and later scopes at the same tier;
// they only become visible to lower tiers once the tier completes.
func (run *EvaluationRun) executeScopes(registrations []ScopeRegistration) error {
	for index, registration := range registrations {
		if registration.Compute == nil {
			return fmt.Errorf("%w: registration %d (%s)", ErrNilComputation, index, registration.Name)
		}
		if err := registration.Tier.validate(); err != nil {
			return fmt.Errorf("%v: registration %d (%s)", err, index, registration.Name)
		}
	}
	for _, tier := range tierOrder {
		run.currentTier = tier
		executed := 0
		for index, registration := range registrations {
			if registration.Tier != tier {
				continue
			}
			ctx := &ScopeContext{
				run:      run,
				tier:     tier,
				name:     registration.Name,
				sourceID: registrationSourceID(registration, index),
			}
			if err := registration.Compute(ctx); err != nil {
				return fmt.Errorf("config: scope %q at tier %s: %w", ctx.name, tier, err)
			}
			executed++
		}
		if executed > 0 {
			run.notifyTierCommitted(tier)
		}
	}
	run.currentTier = TierUnknown
	return nil
}

func registrationSourceID(registration ScopeRegistration, index int) string {
	if registration.SourceID != "" {
		return registration.SourceID
	}
	if registration.Name != "" {
		return "scope:" + registration.Name
	}
	return fmt.Sprintf("scope:%d", index)
}

// readPath resolves a path at the given visibility window and reports the
// read to the activity hooks.
func (run *EvaluationRun) readPath(path Path, tier Tier, cutoff uint64, sourceID string) (any, error) {
	value, winner, err := run.resolvePath(path, tier, cutoff)
	if run.emitter.Enabled() {
		input := activity.EventInput{
			Path:     path.String(),
			Tier:     tier.String(),
			SourceID: sourceID,
			Value:    value,
			Err:      err,
		}
		if err == nil {
			input.Sequence = winner.entry.Sequence
		}
		_ = run.emitter.Emit(context.Background(), activity.BuildReadEvent(input))
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (run *EvaluationRun) notifyWrite(entry Entry) {
	if !run.emitter.Enabled() {
		return
	}
	_ = run.emitter.Emit(context.Background(), activity.BuildWriteEvent(activity.EventInput{
		Path:     entry.Path.String(),
		Tier:     entry.Tier.String(),
		SourceID: entry.SourceID,
		Sequence: entry.Sequence,
		Value:    entry.Value.String(),
	}))
}

func (run *EvaluationRun) notifyTierCommitted(tier Tier) {
	if !run.emitter.Enabled() {
		return
	}
	_ = run.emitter.Emit(context.Background(), activity.BuildTierCommittedEvent(activity.EventInput{
		Tier:     tier.String(),
		Sequence: run.store.NextSequence(),
	}))
}

func (run *EvaluationRun) notifyThunkForced(entry Entry, path Path, value any, err error) {
	if !run.emitter.Enabled() {
		return
	}
	_ = run.emitter.Emit(context.Background(), activity.BuildThunkForcedEvent(activity.EventInput{
		Path:     path.String(),
		Tier:     entry.Tier.String(),
		SourceID: entry.SourceID,
		Sequence: entry.Sequence,
		Value:    value,
		Err:      err,
	}))
}

func (run *EvaluationRun) notifyTreeBuilt(leafCount int) {
	if !run.emitter.Enabled() {
		return
	}
	_ = run.emitter.Emit(context.Background(), activity.BuildTreeBuiltEvent(activity.EventInput{
		Sequence: run.store.NextSequence(),
		Metadata: map[string]any{"leaves": leafCount},
	}))
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*config.exprEvaluator":
		return "expr"
	case "*config.celEvaluator":
		return "cel"
	case "*config.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
