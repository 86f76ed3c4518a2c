package config

import (
	"errors"
	"fmt"
)

// Reader is the read capability handed to scope computations and deferred
// thunks. Every read goes through the lazy resolver, so values computed by
// other scopes are forced on demand.
type Reader interface {
	Get(path string) (any, error)
	GetDefault(path string, fallback any) (any, error)
	Has(path string) bool
}

// Computation is the body of one scope: an opaque callable that reads
// already-decided values and appends new assignments through its context.
type Computation func(ctx *ScopeContext) error

// ScopeRegistration binds a computation to the priority tier it executes at.
// Registrations at the same tier run sequentially in registration order.
type ScopeRegistration struct {
	Name     string
	Tier     Tier
	Compute  Computation
	SourceID string
}

var (
	// ErrNilComputation indicates a registration without a body.
	ErrNilComputation = errors.New("config: scope computation must not be nil")
)

// ScopeContext wraps one scope's execution. Reads resolve against the
// entries already decided for this tier; writes append entries at this tier
// and immediately become visible to later statements in the same scope.
type ScopeContext struct {
	run      *EvaluationRun
	tier     Tier
	name     string
	sourceID string
}

// Tier returns the priority tier this scope executes at.
func (c *ScopeContext) Tier() Tier { return c.tier }

// Name returns the registration name.
func (c *ScopeContext) Name() string { return c.name }

// Get resolves a concrete path against the entries visible to this scope:
// all higher tiers plus earlier writes at this tier. Fails with
// UnresolvedPathError when nothing matches.
func (c *ScopeContext) Get(pathText string) (any, error) {
	path, err := ParsePath(pathText)
	if err != nil {
		return nil, err
	}
	if !path.IsConcrete() {
		return nil, fmt.Errorf("config: read path %q must be concrete", pathText)
	}
	return c.run.readPath(path, c.tier, c.run.store.NextSequence(), c.sourceID)
}

// GetDefault resolves path, returning fallback when no entry matches. Other
// failures (cycles, evaluation errors) still surface.
func (c *ScopeContext) GetDefault(pathText string, fallback any) (any, error) {
	value, err := c.Get(pathText)
	if err != nil {
		if errors.Is(err, ErrUnresolvedPath) {
			return fallback, nil
		}
		return nil, err
	}
	return value, nil
}

// Has reports whether path resolves against the visible entries.
func (c *ScopeContext) Has(pathText string) bool {
	_, err := c.Get(pathText)
	return err == nil
}

// Set appends an assignment at this scope's tier. Wildcard paths are
// accepted; they override every matching concrete leaf discovered elsewhere.
// Writes to paths already finalized at a higher tier are recorded too; they
// simply lose at merge time.
func (c *ScopeContext) Set(pathText string, value any) error {
	path, err := ParsePath(pathText)
	if err != nil {
		return err
	}
	entry, err := c.run.store.Append(path, value, c.tier, c.sourceID)
	if err != nil {
		return err
	}
	c.run.notifyWrite(entry)
	return nil
}

var _ Reader = (*ScopeContext)(nil)

// boundReader is the read capability handed to a deferred value while it is
// being forced. It reads at the owning assignment's tier with the cutoff
// taken when forcing starts, mirroring the owning scope's own context: the
// whole tier plus everything stronger is visible, weaker tiers are not.
type boundReader struct {
	run      *EvaluationRun
	tier     Tier
	cutoff   uint64
	sourceID string
}

func (r *boundReader) Get(pathText string) (any, error) {
	path, err := ParsePath(pathText)
	if err != nil {
		return nil, err
	}
	if !path.IsConcrete() {
		return nil, fmt.Errorf("config: read path %q must be concrete", pathText)
	}
	return r.run.readPath(path, r.tier, r.cutoff, r.sourceID)
}

func (r *boundReader) GetDefault(pathText string, fallback any) (any, error) {
	value, err := r.Get(pathText)
	if err != nil {
		if errors.Is(err, ErrUnresolvedPath) {
			return fallback, nil
		}
		return nil, err
	}
	return value, nil
}

func (r *boundReader) Has(pathText string) bool {
	_, err := r.Get(pathText)
	return err == nil
}

var _ Reader = (*boundReader)(nil)
