package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrEmptyPath indicates an append with a zero-length path.
	ErrEmptyPath = errors.New("config: entry path must not be empty")
	// ErrInvalidTier indicates an append outside the known tier range.
	ErrInvalidTier = errors.New("config: entry tier out of range")
)

// Entry is an immutable recorded assignment. Sequence is assigned at append
// time and is strictly monotonic across the whole store; it breaks ties
// within a tier (a later statement overrides an earlier one).
type Entry struct {
	Path     Path
	Value    Value
	Tier     Tier
	Sequence uint64
	SourceID string
}

// Store is the append-only record of assignments. Entries are never mutated
// or removed; replay and debugging only require sequence order.
type Store struct {
	entries []Entry
	nextSeq uint64
}

// NewStore constructs an empty entry store.
func NewStore() *Store {
	return &Store{nextSeq: 1}
}

// Append records an assignment and returns the stored entry. The value goes
// through Normalize, so plain maps, slices, Computed and Thunk values are all
// accepted. An empty sourceID is replaced with a generated identifier.
func (s *Store) Append(path Path, value any, tier Tier, sourceID string) (Entry, error) {
	if path.Len() == 0 {
		return Entry{}, ErrEmptyPath
	}
	if !tier.Valid() {
		return Entry{}, fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}
	if sourceID == "" {
		sourceID = uuid.NewString()
	}
	entry := Entry{
		Path:     path,
		Value:    Normalize(value),
		Tier:     tier,
		Sequence: s.nextSeq,
		SourceID: sourceID,
	}
	s.nextSeq++
	s.entries = append(s.entries, entry)
	return entry, nil
}

// Add parses pathText and appends the assignment. Convenience for callers
// holding textual paths; parse failures surface as MalformedPathError.
func (s *Store) Add(pathText string, value any, tier Tier, sourceID string) (Entry, error) {
	path, err := ParsePath(pathText)
	if err != nil {
		return Entry{}, err
	}
	return s.Append(path, value, tier, sourceID)
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// NextSequence returns the sequence number the next append will receive.
// Used as the visibility cutoff for "everything decided so far".
func (s *Store) NextSequence() uint64 {
	if s == nil {
		return 1
	}
	return s.nextSeq
}

// Entries returns a copy of all entries in append order.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// VisibleAt returns the entries already decided relative to a point
// mid-execution: every entry at a strictly higher tier, plus same-tier
// entries appended before the cutoff. This is the formal statement of "named
// configs see the command line but not the defaults, and later statements in
// a scope see earlier ones".
func (s *Store) VisibleAt(tier Tier, cutoff uint64) []Entry {
	if s == nil {
		return nil
	}
	var out []Entry
	for _, entry := range s.entries {
		if entry.Tier > tier || (entry.Tier == tier && entry.Sequence < cutoff) {
			out = append(out, entry)
		}
	}
	return out
}

// clone copies the store so an evaluation run can append scope writes without
// mutating the caller's seed entries.
func (s *Store) clone() *Store {
	if s == nil {
		return NewStore()
	}
	copied := &Store{
		entries: make([]Entry, len(s.entries)),
		nextSeq: s.nextSeq,
	}
	copy(copied.entries, s.entries)
	if copied.nextSeq == 0 {
		copied.nextSeq = 1
	}
	return copied
}

// concreteLeaves enumerates the concrete leaf universe reachable from the
// given entries: for structured values every nested leaf, for concrete paths
// the path itself. Wildcard patterns contribute nothing on their own; they
// are expanded against this universe.
func concreteLeaves(entries []Entry) []Path {
	seen := make(map[string]struct{})
	var out []Path
	add := func(path Path) {
		if !path.IsConcrete() {
			return
		}
		key := path.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, path)
	}
	for _, entry := range entries {
		if !entry.Path.IsConcrete() {
			continue
		}
		if entry.Value.isStructured() {
			for _, leaf := range entry.Value.leafPaths(entry.Path) {
				add(leaf)
			}
			continue
		}
		add(entry.Path)
	}
	return out
}
