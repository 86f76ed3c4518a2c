package activity

import "time"

// Evaluation lifecycle verbs emitted by the engine.
const (
	VerbRead          = "config.read"
	VerbWrite         = "config.write"
	VerbThunkForced   = "config.thunk.forced"
	VerbTierCommitted = "config.tier.committed"
	VerbTreeBuilt     = "config.tree.built"
)

// EventInput describes the common fields for evaluation lifecycle events.
type EventInput struct {
	RunID      string
	Path       string
	Tier       string
	SourceID   string
	Sequence   uint64
	Value      any
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildReadEvent constructs a normalized event for a scope read.
func BuildReadEvent(input EventInput) Event {
	return buildEvent(VerbRead, input)
}

// BuildWriteEvent constructs a normalized event for a scope write.
func BuildWriteEvent(input EventInput) Event {
	return buildEvent(VerbWrite, input)
}

// BuildThunkForcedEvent constructs an event describing the forcing of a
// computed value.
func BuildThunkForcedEvent(input EventInput) Event {
	return buildEvent(VerbThunkForced, input)
}

// BuildTierCommittedEvent constructs an event marking a tier's entries as
// committed and visible to lower tiers.
func BuildTierCommittedEvent(input EventInput) Event {
	return buildEvent(VerbTierCommitted, input)
}

// BuildTreeBuiltEvent constructs an event marking a completed resolved tree.
func BuildTreeBuiltEvent(input EventInput) Event {
	return buildEvent(VerbTreeBuilt, input)
}

func buildEvent(verb string, input EventInput) Event {
	errText := ""
	if input.Err != nil {
		errText = input.Err.Error()
	}
	return Event{
		Verb:       verb,
		RunID:      input.RunID,
		Path:       input.Path,
		Tier:       input.Tier,
		SourceID:   input.SourceID,
		Sequence:   input.Sequence,
		Value:      input.Value,
		Err:        errText,
		Metadata:   cloneMap(input.Metadata),
		OccurredAt: input.OccurredAt,
	}
}
