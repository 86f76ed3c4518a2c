package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPath indicates path text that failed to parse.
	ErrMalformedPath = errors.New("config: malformed path")
	// ErrUnresolvedPath indicates a read of a path with no matching entry at
	// any visible tier and no default supplied.
	ErrUnresolvedPath = errors.New("config: unresolved path")
	// ErrCyclicDependency indicates re-entrant resolution of a path that is
	// already being forced.
	ErrCyclicDependency = errors.New("config: cyclic dependency")
	// ErrIncompleteResolution indicates the final tree contained a leaf that
	// could not be resolved.
	ErrIncompleteResolution = errors.New("config: incomplete resolution")
)

// MalformedPathError reports invalid path syntax detected at parse time.
type MalformedPathError struct {
	Text     string
	Position int
	Reason   string
}

func (e *MalformedPathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("config: malformed path %q at offset %d: %s", e.Text, e.Position, e.Reason)
}

func (e *MalformedPathError) Unwrap() error { return ErrMalformedPath }

// UnresolvedPathError reports a read that matched no visible entry. Tier and
// Cutoff describe the visibility window the lookup used so the failing
// assignment can be located.
type UnresolvedPathError struct {
	Path   Path
	Tier   Tier
	Cutoff uint64
}

func (e *UnresolvedPathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("config: unresolved path %q (tier=%s cutoff=%d)", e.Path, e.Tier, e.Cutoff)
}

func (e *UnresolvedPathError) Unwrap() error { return ErrUnresolvedPath }

// CyclicDependencyError reports a resolution cycle. Chain lists the paths in
// forcing order; the final element re-enters the first.
type CyclicDependencyError struct {
	Chain []string
}

func (e *CyclicDependencyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("config: cyclic dependency: %s", strings.Join(e.Chain, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// IncompleteResolutionError reports that the tree builder found an
// unresolvable leaf. The whole evaluation aborts rather than emitting a
// partial tree.
type IncompleteResolutionError struct {
	Path Path
	Err  error
}

func (e *IncompleteResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("config: incomplete resolution at %q: %v", e.Path, e.Err)
}

func (e *IncompleteResolutionError) Unwrap() error {
	if e == nil || e.Err == nil {
		return ErrIncompleteResolution
	}
	return e.Err
}

// Is lets errors.Is match both the sentinel and the wrapped cause.
func (e *IncompleteResolutionError) Is(target error) bool {
	return target == ErrIncompleteResolution
}
