package config

import (
	"errors"
	"testing"
)

func TestStoreAppendSequencesAndSourceIDs(t *testing.T) {
	store := NewStore()
	first, err := store.Add("batch_size", 32, TierConfigDefaults, "defaults")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := store.Add("seed", 42, TierCommandLine, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("expected sequences 1 and 2, got %d and %d", first.Sequence, second.Sequence)
	}
	if second.SourceID == "" {
		t.Fatalf("expected a generated source id")
	}
	if store.NextSequence() != 3 {
		t.Fatalf("expected next sequence 3, got %d", store.NextSequence())
	}
}

func TestStoreRejectsBadAppends(t *testing.T) {
	store := NewStore()
	if _, err := store.Append(Path{}, 1, TierCommandLine, "cli"); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
	if _, err := store.Add("batch_size", 1, TierUnknown, "cli"); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
	if _, err := store.Add("a..b", 1, TierCommandLine, "cli"); !errors.Is(err, ErrMalformedPath) {
		t.Fatalf("expected ErrMalformedPath, got %v", err)
	}
}

func TestStoreVisibility(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "a", 1, TierConfigDefaults, "defaults") // seq 1
	mustAdd(t, store, "b", 2, TierCommandLine, "cli")         // seq 2
	mustAdd(t, store, "c", 3, TierConfigDefaults, "defaults") // seq 3
	mustAdd(t, store, "d", 4, TierNamedConfig, "named")       // seq 4

	// Mid-defaults at cutoff 3: higher tiers plus earlier defaults.
	visible := store.VisibleAt(TierConfigDefaults, 3)
	if got := pathSet(visible); !got["a"] || !got["b"] || !got["d"] || got["c"] {
		t.Fatalf("unexpected visibility %v", got)
	}

	// A named config never sees defaults, regardless of append order.
	visible = store.VisibleAt(TierNamedConfig, 4)
	if got := pathSet(visible); got["a"] || got["c"] || !got["b"] {
		t.Fatalf("unexpected visibility %v", got)
	}

	// Full visibility.
	if got := store.VisibleAt(TierUnknown, 0); len(got) != 4 {
		t.Fatalf("expected all 4 entries, got %d", len(got))
	}
}

func TestStoreCloneIsIndependent(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "a", 1, TierConfigDefaults, "defaults")
	copied := store.clone()
	mustAdd(t, copied, "b", 2, TierConfigDefaults, "defaults")
	if store.Len() != 1 {
		t.Fatalf("appending to the clone leaked into the seed")
	}
	if copied.Len() != 2 {
		t.Fatalf("expected 2 entries in the clone, got %d", copied.Len())
	}
}

func TestConcreteLeavesExpandStructuredValues(t *testing.T) {
	store := NewStore()
	mustAdd(t, store, "layers", map[string]any{
		"hidden1": map[string]any{"size": 300},
		"hidden2": map[string]any{"size": 100},
	}, TierConfigDefaults, "defaults")
	mustAdd(t, store, "seed", 42, TierCommandLine, "cli")
	mustAdd(t, store, "layers.*.dropout", 0.5, TierCommandLine, "cli")

	leaves := concreteLeaves(store.Entries())
	got := make(map[string]bool, len(leaves))
	for _, leaf := range leaves {
		got[leaf.String()] = true
	}
	for _, want := range []string{"layers.hidden1.size", "layers.hidden2.size", "seed"} {
		if !got[want] {
			t.Fatalf("missing leaf %s in %v", want, got)
		}
	}
	if got["layers.*.dropout"] {
		t.Fatalf("wildcard patterns must not contribute leaves")
	}
}

func mustAdd(t *testing.T, store *Store, pathText string, value any, tier Tier, sourceID string) Entry {
	t.Helper()
	entry, err := store.Add(pathText, value, tier, sourceID)
	if err != nil {
		t.Fatalf("add %s: %v", pathText, err)
	}
	return entry
}

func pathSet(entries []Entry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, entry := range entries {
		out[entry.Path.String()] = true
	}
	return out
}
