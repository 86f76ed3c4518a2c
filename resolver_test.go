package config

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func newTestRun(t *testing.T, store *Store, opts ...Option) *EvaluationRun {
	t.Helper()
	return newEvaluationRun(store, applyOptions(opts))
}

func resolveValue(t *testing.T, run *EvaluationRun, pathText string) any {
	t.Helper()
	value, _, err := run.resolvePath(MustParsePath(pathText), TierUnknown, 0)
	if err != nil {
		t.Fatalf("resolve %s: %v", pathText, err)
	}
	return value
}

func TestResolveHigherTierWins(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "batch_size", 32, TierConfigDefaults, "defaults")
	mustAdd(t, store, "batch_size", 128, TierCommandLine, "cli")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "batch_size"); got != 128 {
		t.Fatalf("expected the command line to win, got %v", got)
	}
}

func TestResolveForcedTierBeatsCommandline(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "seed", 42, TierCommandLine, "cli")
	mustAdd(t, store, "seed", 7, TierForced, "harness")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "seed"); got != 7 {
		t.Fatalf("the forced tier must override the command line, got %v", got)
	}
}

func TestResolveSpecificityBeatsWildcardAtEqualTier(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers.*.size", 100, TierCommandLine, "cli")
	mustAdd(t, store, "layers.hidden1.size", 999, TierCommandLine, "cli")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "layers.hidden1.size"); got != 999 {
		t.Fatalf("expected the concrete entry to win, got %v", got)
	}
}

func TestResolveWildcardOverridesNestedDefault(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"size": 200},
		"hidden2": map[string]any{"size": 300},
	}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "layers.*.size", 100, TierCommandLine, "cli")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "layers.hidden1.size"); got != 100 {
		t.Fatalf("hidden1.size = %v, want 100", got)
	}
	if got := resolveValue(t, run, "layers.hidden2.size"); got != 100 {
		t.Fatalf("hidden2.size = %v, want 100", got)
	}
}

func TestResolveLaterWildcardBeatsEarlierMappingLeaves(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"dropout": 0.0},
	}, TierCommandLine, "cli")
	mustAdd(t, store, "layers.*.dropout", 0.5, TierCommandLine, "cli")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "layers.hidden1.dropout"); got != 0.5 {
		t.Fatalf("expected the later wildcard to override, got %v", got)
	}

	// A mapping written after the wildcard re-establishes its leaves.
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"dropout": 0.25},
	}, TierCommandLine, "cli")
	run = newTestRun(t, store)
	if got := resolveValue(t, run, "layers.hidden1.dropout"); got != 0.25 {
		t.Fatalf("expected the later mapping to win, got %v", got)
	}
}

func TestResolveStructuredDeepMerge(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"size": 200, "act": "relu"},
		"hidden2": map[string]any{"size": 300},
	}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "layers.hidden1.size", 512, TierCommandLine, "cli")
	mustAdd(t, store, "layers.hidden3.size", 64, TierNamedConfig, "named")

	run := newTestRun(t, store)
	got := resolveValue(t, run, "layers")
	want := map[string]any{
		"hidden1": map[string]any{"size": 512, "act": "relu"},
		"hidden2": map[string]any{"size": 300},
		"hidden3": map[string]any{"size": 64},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("deep merge mismatch:\n got %#v\nwant %#v", got, want)
	}
}

func TestResolveScalarAncestorDeniesWeakerLeaf(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "optimizer", "sgd", TierCommandLine, "cli")
	mustAdd(t, store, "optimizer.momentum", 0.9, TierConfigDefaults, "defaults")

	// The command line owns "optimizer" outright, so the finer default is
	// recorded but never takes effect.
	run := newTestRun(t, store)
	if got := resolveValue(t, run, "optimizer"); got != "sgd" {
		t.Fatalf("optimizer = %v, want sgd", got)
	}
	_, _, err := run.resolvePath(MustParsePath("optimizer.momentum"), TierUnknown, 0)
	if !errors.Is(err, ErrUnresolvedPath) {
		t.Fatalf("the denied leaf must be unresolvable, got %v", err)
	}
}

func TestResolveMappingAncestorBlocksWeakerGraft(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "optimizer", map[string]any{"lr": 0.1}, TierCommandLine, "cli")
	mustAdd(t, store, "optimizer.momentum", 0.9, TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	got := resolveValue(t, run, "optimizer")
	want := map[string]any{"lr": 0.1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("optimizer = %#v, want %#v", got, want)
	}
}

func TestResolveStrongerLeafStillRefinesWeakerAncestor(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "optimizer", map[string]any{"lr": 0.1}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "optimizer.momentum", 0.9, TierCommandLine, "cli")

	run := newTestRun(t, store)
	got := resolveValue(t, run, "optimizer")
	want := map[string]any{"lr": 0.1, "momentum": 0.9}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("optimizer = %#v, want %#v", got, want)
	}
}

func TestResolveListValue(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "dims", []any{100, 200, 300}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "dims[1]", 999, TierCommandLine, "cli")

	run := newTestRun(t, store)
	got := resolveValue(t, run, "dims")
	want := []any{100, 999, 300}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dims = %#v, want %#v", got, want)
	}
}

func TestResolveStrongerListReplacesWeakerWholesale(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "dims", []any{1, 2, 3, 4}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "dims", []any{7, 8}, TierCommandLine, "cli")

	run := newTestRun(t, store)
	got := resolveValue(t, run, "dims")
	want := []any{7, 8}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dims = %#v, want %#v", got, want)
	}
}

func TestResolveUnknownPath(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "batch_size", 32, TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	_, _, err := run.resolvePath(MustParsePath("missing"), TierUnknown, 0)
	if !errors.Is(err, ErrUnresolvedPath) {
		t.Fatalf("expected ErrUnresolvedPath, got %v", err)
	}
	var unresolved *UnresolvedPathError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedPathError, got %T", err)
	}
	if unresolved.Path.String() != "missing" {
		t.Fatalf("error carries wrong path %q", unresolved.Path)
	}
}

func TestResolvePurelyStructuralInterior(t *testing.T) {
	// No entry at "layers", only finer entries below it.
	store := NewStore()
	mustAdd(t, store, "layers.hidden1.size", 300, TierConfigDefaults, "defaults")
	mustAdd(t, store, "layers.hidden2.size", 100, TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	got := resolveValue(t, run, "layers")
	want := map[string]any{
		"hidden1": map[string]any{"size": 300},
		"hidden2": map[string]any{"size": 100},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("layers = %#v, want %#v", got, want)
	}
}

func TestResolveThunkReadsThroughHigherTiers(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "batch_size", 32, TierCommandLine, "cli")
	mustAdd(t, store, "learn_rate", Thunk(func(r Reader) (any, error) {
		size, err := r.Get("batch_size")
		if err != nil {
			return nil, err
		}
		return 0.01 * float64(size.(int)), nil
	}), TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "learn_rate"); got != 0.32 {
		t.Fatalf("learn_rate = %v, want 0.32", got)
	}
}

func TestResolveThunkSeesOwnTierFinalState(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "base", 10, TierConfigDefaults, "defaults")
	mustAdd(t, store, "derived", Thunk(func(r Reader) (any, error) {
		base, err := r.Get("base")
		if err != nil {
			return nil, err
		}
		return base.(int) * 2, nil
	}), TierConfigDefaults, "defaults")
	// Appended after the thunk at the same tier: still visible when the
	// thunk is eventually forced, because forcing reads with the owning
	// scope's context, not a snapshot at write time.
	mustAdd(t, store, "base", 100, TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "derived"); got != 200 {
		t.Fatalf("derived = %v, want 200", got)
	}
}

func TestResolveThunkDoesNotSeeWeakerTiers(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "base", 10, TierConfigDefaults, "defaults")
	mustAdd(t, store, "derived", Thunk(func(r Reader) (any, error) {
		return r.Get("base")
	}), TierCommandLine, "cli")

	run := newTestRun(t, store)
	_, _, err := run.resolvePath(MustParsePath("derived"), TierUnknown, 0)
	if !errors.Is(err, ErrUnresolvedPath) {
		t.Fatalf("a command-line thunk must not read defaults, got %v", err)
	}
}

func TestResolveComputedExpression(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"size": 200},
		"hidden2": map[string]any{"size": 300},
	}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "layers.*.size", 100, TierCommandLine, "cli")
	mustAdd(t, store, "total_units", Computed("layers.hidden1.size + layers.hidden2.size"), TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "total_units"); got != 200 {
		t.Fatalf("total_units = %v, want 200", got)
	}
}

func TestResolveCycleFailsWithChain(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "a", Thunk(func(r Reader) (any, error) {
		return r.Get("b")
	}), TierConfigDefaults, "defaults")
	mustAdd(t, store, "b", Thunk(func(r Reader) (any, error) {
		return r.Get("a")
	}), TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	_, _, err := run.resolvePath(MustParsePath("a"), TierUnknown, 0)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
	var cyclic *CyclicDependencyError
	if !errors.As(err, &cyclic) {
		t.Fatalf("expected CyclicDependencyError, got %T", err)
	}
	chain := strings.Join(cyclic.Chain, " -> ")
	if !strings.Contains(chain, "a") || !strings.Contains(chain, "b") {
		t.Fatalf("chain %q should mention both paths", chain)
	}
}

func TestResolveMemoizesPerVisibilityWindow(t *testing.T) {
	forced := 0
	store := NewStore()
	mustAdd(t, store, "expensive", Thunk(func(r Reader) (any, error) {
		forced++
		return 7, nil
	}), TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	if got := resolveValue(t, run, "expensive"); got != 7 {
		t.Fatalf("unexpected value %v", got)
	}
	if got := resolveValue(t, run, "expensive"); got != 7 {
		t.Fatalf("unexpected value %v", got)
	}
	if forced != 1 {
		t.Fatalf("thunk forced %d times, want 1", forced)
	}
}

func TestResolveReturnsClones(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"size": 300},
	}, TierConfigDefaults, "defaults")

	run := newTestRun(t, store)
	first := resolveValue(t, run, "layers").(map[string]any)
	first["hidden1"].(map[string]any)["size"] = -1
	second := resolveValue(t, run, "layers").(map[string]any)
	if second["hidden1"].(map[string]any)["size"] != 300 {
		t.Fatalf("mutating a resolved value leaked into the memo")
	}
}

func TestCollectCandidatesRanking(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers.*.size", 100, TierCommandLine, "cli")        // seq 1
	mustAdd(t, store, "layers.hidden1.size", 999, TierCommandLine, "cli")  // seq 2
	mustAdd(t, store, "layers.hidden1.size", 5, TierConfigDefaults, "d")   // seq 3

	candidates := collectCandidates(MustParsePath("layers.hidden1.size"), store.VisibleAt(TierUnknown, 0))
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].entry.Sequence != 2 {
		t.Fatalf("expected the concrete CLI entry first, got sequence %d", candidates[0].entry.Sequence)
	}
	if candidates[1].entry.Sequence != 1 {
		t.Fatalf("expected the wildcard CLI entry second, got sequence %d", candidates[1].entry.Sequence)
	}
	if candidates[2].entry.Tier != TierConfigDefaults {
		t.Fatalf("expected the defaults entry last")
	}
}

func TestCollectCandidatesImplicitFromStructuredValue(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"size": 200},
	}, TierConfigDefaults, "defaults")

	candidates := collectCandidates(MustParsePath("layers.hidden1.size"), store.VisibleAt(TierUnknown, 0))
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if !candidates[0].implicit {
		t.Fatalf("expected an implicit candidate")
	}
	if candidates[0].specificity != 3 {
		t.Fatalf("expected specificity 3, got %d", candidates[0].specificity)
	}
	if candidates[0].pattern.String() != "layers.hidden1.size" {
		t.Fatalf("unexpected pattern %q", candidates[0].pattern)
	}
}
