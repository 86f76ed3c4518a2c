package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Qwlouse/configv2/layering"
)

// ErrNoEvaluator indicates a computed value was forced without an expression
// engine configured.
var ErrNoEvaluator = errors.New("config: evaluator not configured")

// candidate pairs an entry with the value it contributes at a requested
// path. Implicit candidates were dug out of a nested structure literal; the
// effective pattern then extends the entry path with the literal remainder.
type candidate struct {
	entry       Entry
	value       Value
	pattern     Path
	specificity int
	implicit    bool
}

// rankBefore orders candidates strongest first. Explicit candidates at the
// same tier rank by specificity then sequence; when an explicit entry
// competes with an implicit sub-entry from a structure literal, the later
// sequence wins, so a wildcard written after a mapping overrides its leaves
// and a mapping written after a wildcard re-establishes them.
func rankBefore(a, b candidate) bool {
	if a.entry.Tier != b.entry.Tier {
		return a.entry.Tier > b.entry.Tier
	}
	if a.implicit != b.implicit {
		return a.entry.Sequence > b.entry.Sequence
	}
	if a.specificity != b.specificity {
		return a.specificity > b.specificity
	}
	return a.entry.Sequence > b.entry.Sequence
}

// rankEntryAbove compares raw entries by (tier, sequence).
func rankEntryAbove(a, b Entry) bool {
	if a.Tier != b.Tier {
		return a.Tier > b.Tier
	}
	return a.Sequence > b.Sequence
}

// deniedAt reports whether entry has no write access at path: some ancestor
// assignment above the position entry was written at outranks it, so the
// ancestor decides the whole subtree and the finer write is recorded but
// inert. Ancestors at entry's own path are unaffected, so mappings at the
// same path still deep-merge; the check is localized to path, so a wildcard
// entry can be owned out of one subtree while staying live in another.
func deniedAt(path Path, entry Entry, visible []Entry) bool {
	for _, ancestor := range visible {
		if ancestor.Path.Len() >= entry.Path.Len() || !ancestor.Path.IsPrefixOf(path) {
			continue
		}
		if rankEntryAbove(ancestor, entry) {
			return true
		}
	}
	return false
}

func collectCandidates(path Path, visible []Entry) []candidate {
	var out []candidate
	for _, entry := range visible {
		if deniedAt(path, entry, visible) {
			continue
		}
		if entry.Path.Matches(path) {
			out = append(out, candidate{
				entry:       entry,
				value:       entry.Value,
				pattern:     entry.Path,
				specificity: entry.Path.Specificity(),
				implicit:    false,
			})
			continue
		}
		if entry.Path.Len() < path.Len() && entry.Path.IsPrefixOf(path) && entry.Value.isStructured() {
			suffix := path.Suffix(entry.Path.Len())
			value, ok := entry.Value.dig(suffix)
			if !ok {
				continue
			}
			out = append(out, candidate{
				entry:       entry,
				value:       value,
				pattern:     entry.Path.Join(suffix),
				specificity: entry.Path.Specificity() + suffix.Len(),
				implicit:    true,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rankBefore(out[i], out[j]) })
	return out
}

func hasFinerEntries(path Path, visible []Entry) bool {
	for _, entry := range visible {
		if entry.Path.Len() > path.Len() && path.IsPrefixOf(entry.Path) && !deniedAt(entry.Path, entry, visible) {
			return true
		}
	}
	return false
}

// resolvePath computes the value of a concrete path against the entries
// visible at (tier, cutoff). Results are memoized per visibility window for
// the remainder of the run; the store is append-only, so a window's answer
// never changes once computed.
func (run *EvaluationRun) resolvePath(path Path, tier Tier, cutoff uint64) (any, candidate, error) {
	key := memoKey{path: path.String(), tier: tier, cutoff: cutoff}
	if cached, ok := run.memo[key]; ok {
		return layering.Clone(cached.value), cached.winner, nil
	}

	visible := run.store.VisibleAt(tier, cutoff)
	candidates := collectCandidates(path, visible)
	if len(candidates) == 0 {
		if !hasFinerEntries(path, visible) {
			return nil, candidate{}, &UnresolvedPathError{Path: path, Tier: tier, Cutoff: cutoff}
		}
		value, err := run.resolveStructured(path, nil, visible, tier, cutoff)
		if err != nil {
			return nil, candidate{}, err
		}
		run.memo[key] = resolved{value: value}
		return layering.Clone(value), candidate{}, nil
	}

	winner := candidates[0]
	var value any
	var err error
	switch winner.value.Kind() {
	case KindScalar:
		value = winner.value.ScalarValue()
	case KindComputed, KindThunk:
		value, err = run.force(winner.entry, winner.value, path)
	default:
		value, err = run.resolveStructured(path, candidates, visible, tier, cutoff)
	}
	if err != nil {
		return nil, candidate{}, err
	}
	run.memo[key] = resolved{value: value, winner: winner}
	return layering.Clone(value), winner, nil
}

// resolveStructured materializes a mapping or list at path. The shapes of
// every structured candidate merge strongest-first (a stronger scalar or
// computed candidate shadows everything weaker), finer concrete entries
// graft additional branches, and each discovered leaf then resolves
// independently so wildcard and higher-tier overrides apply per leaf.
func (run *EvaluationRun) resolveStructured(path Path, ranked []candidate, visible []Entry, tier Tier, cutoff uint64) (any, error) {
	var shape any
	if len(ranked) > 0 && ranked[0].value.Kind() == KindList {
		shape = shapeOf(ranked[0].value)
	} else {
		var shapes []map[string]any
		for _, cand := range ranked {
			if cand.value.Kind() != KindMapping {
				break
			}
			mapped, _ := shapeOf(cand.value).(map[string]any)
			shapes = append(shapes, mapped)
		}
		merged := layering.MergeTrees(shapes...)
		if merged == nil {
			merged = map[string]any{}
		}
		var winnerEntry Entry
		if len(ranked) > 0 {
			winnerEntry = ranked[0].entry
		}
		for _, entry := range visible {
			if entry.Path.Len() <= path.Len() || !entry.Path.IsConcrete() || !path.IsPrefixOf(entry.Path) {
				continue
			}
			if deniedAt(entry.Path, entry, visible) {
				continue
			}
			graft(merged, entry.Path.Suffix(path.Len()), entry.Value, rankEntryAbove(entry, winnerEntry))
		}
		shape = merged
	}
	return run.materialize(shape, path, tier, cutoff)
}

// shapeOf reduces a structured value to its key skeleton: mappings and lists
// keep their structure, every leaf collapses to a marker.
func shapeOf(value Value) any {
	switch value.Kind() {
	case KindMapping:
		out := make(map[string]any, len(value.mapping))
		for key, child := range value.mapping {
			out[key] = shapeOf(child)
		}
		return out
	case KindList:
		out := make([]any, len(value.list))
		for i, child := range value.list {
			out[i] = shapeOf(child)
		}
		return out
	default:
		return leafMarker{}
	}
}

type leafMarker struct{}

// graft inserts the shape of a finer entry at suffix. When overwrite is
// false existing branches are preserved and only missing ones are filled.
func graft(shape map[string]any, suffix Path, value Value, overwrite bool) {
	current := shape
	for i := 0; i < suffix.Len()-1; i++ {
		key := segmentKey(suffix.Segment(i))
		next, ok := current[key].(map[string]any)
		if !ok {
			if _, exists := current[key]; exists && !overwrite {
				return
			}
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	key := segmentKey(suffix.Segment(suffix.Len() - 1))
	if _, exists := current[key]; exists && !overwrite {
		return
	}
	current[key] = shapeOf(value)
}

func segmentKey(segment Segment) string {
	if segment.Kind() == SegmentIndex {
		return strconv.Itoa(segment.Index())
	}
	return segment.Key()
}

// materialize walks a shape and resolves every leaf through resolvePath, so
// the assembled container reflects the deep-merged, per-leaf winners.
func (run *EvaluationRun) materialize(shape any, at Path, tier Tier, cutoff uint64) (any, error) {
	switch s := shape.(type) {
	case map[string]any:
		out := make(map[string]any, len(s))
		keys := make([]string, 0, len(s))
		for key := range s {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child, err := run.materialize(s[key], at.Child(Key(key)), tier, cutoff)
			if err != nil {
				return nil, err
			}
			out[key] = child
		}
		return out, nil
	case []any:
		out := make([]any, len(s))
		for i, item := range s {
			child, err := run.materialize(item, at.Child(Index(i)), tier, cutoff)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	default:
		value, _, err := run.resolvePath(at, tier, cutoff)
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}

// force evaluates a deferred value, guarding against re-entrant resolution
// of the same path. The reader handed to the computation is bound to the
// owning scope's context: the owning tier, with every sequence appended so
// far visible. Two deferred values at the same tier can therefore observe
// each other, which is what makes a genuine dependency cycle expressible
// and detectable.
func (run *EvaluationRun) force(entry Entry, value Value, at Path) (any, error) {
	pathKey := at.String()
	if run.inProgress[pathKey] {
		chain := append(append([]string{}, run.chain...), pathKey)
		return nil, &CyclicDependencyError{Chain: chain}
	}
	run.inProgress[pathKey] = true
	run.chain = append(run.chain, pathKey)
	defer func() {
		delete(run.inProgress, pathKey)
		run.chain = run.chain[:len(run.chain)-1]
	}()

	reader := &boundReader{run: run, tier: entry.Tier, cutoff: run.store.NextSequence(), sourceID: entry.SourceID}

	var engine string
	var result any
	var err error
	start := time.Now()
	switch value.Kind() {
	case KindThunk:
		engine = "go"
		result, err = value.fn(reader)
	case KindComputed:
		evaluator := run.resolveEvaluator()
		engine = evaluatorEngineName(evaluator)
		result, err = run.forceExpression(entry, value.Expression(), at, reader, evaluator)
	default:
		err = fmt.Errorf("config: cannot force %s value at %q", value.Kind(), at)
	}
	duration := time.Since(start)

	run.logger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     value.Expression(),
		Path:     at.String(),
		Tier:     entry.Tier,
		Duration: duration,
		Err:      err,
	})
	run.notifyThunkForced(entry, at, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (run *EvaluationRun) forceExpression(entry Entry, expression string, at Path, reader Reader, evaluator Evaluator) (any, error) {
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	refs, err := evaluator.References(expression)
	if err != nil {
		return nil, err
	}
	bindings := map[string]any{}
	if refs == nil {
		// Dynamic engine: bind every resolvable top-level name.
		for _, name := range run.topLevelNames(entry.Tier, run.store.NextSequence()) {
			if run.isReservedBinding(name) {
				continue
			}
			if value, readErr := reader.Get(name); readErr == nil {
				bindings[name] = value
			}
		}
	} else {
		for _, name := range refs {
			if run.isReservedBinding(name) {
				continue
			}
			value, readErr := reader.Get(name)
			if readErr != nil {
				return nil, readErr
			}
			bindings[name] = value
		}
	}
	ctx := EvalContext{
		Bindings: bindings,
		Args:     run.cfg.args,
		Metadata: run.cfg.metadata,
		Path:     at.String(),
		Tier:     entry.Tier,
		SourceID: entry.SourceID,
	}
	return evaluator.Evaluate(ctx, expression)
}

func (run *EvaluationRun) isReservedBinding(name string) bool {
	switch name {
	case "now", "args", "metadata", "call", "cfg":
		return true
	}
	return run.cfg.functions.Has(name)
}

func (run *EvaluationRun) topLevelNames(tier Tier, cutoff uint64) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, entry := range run.store.VisibleAt(tier, cutoff) {
		segment := entry.Path.Segment(0)
		if segment.Kind() != SegmentKey {
			continue
		}
		if _, ok := seen[segment.Key()]; ok {
			continue
		}
		seen[segment.Key()] = struct{}{}
		names = append(names, segment.Key())
	}
	sort.Strings(names)
	return names
}
