package config

import (
	"encoding/json"
)

// Trace captures every candidate assignment considered for a path lookup,
// strongest first, with the selected winner marked.
type Trace struct {
	Path       string           `json:"path"`
	Candidates []CandidateTrace `json:"candidates"`
}

// CandidateTrace details how a specific assignment competed for a traced
// path.
type CandidateTrace struct {
	Pattern     string `json:"pattern"`
	Tier        Tier   `json:"tier"`
	TierName    string `json:"tier_name"`
	Sequence    uint64 `json:"sequence"`
	SourceID    string `json:"source_id,omitempty"`
	Specificity int    `json:"specificity"`
	Implicit    bool   `json:"implicit"`
	Kind        string `json:"kind"`
	Selected    bool   `json:"selected"`
	Value       any    `json:"value,omitempty"`
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

// ResolveWithTrace resolves a concrete path against the store at full
// visibility and reports every candidate that competed for it. The store is
// not mutated; computed candidates carry their expression text rather than a
// forced result unless they won.
func ResolveWithTrace(store *Store, path Path, opts ...Option) (any, Trace, error) {
	cfg := applyOptions(opts)
	run := newEvaluationRun(store, cfg)
	trace := Trace{Path: path.String()}

	candidates := collectCandidates(path, run.store.VisibleAt(TierUnknown, 0))
	for _, cand := range candidates {
		record := CandidateTrace{
			Pattern:     cand.pattern.String(),
			Tier:        cand.entry.Tier,
			TierName:    cand.entry.Tier.String(),
			Sequence:    cand.entry.Sequence,
			SourceID:    cand.entry.SourceID,
			Specificity: cand.specificity,
			Implicit:    cand.implicit,
			Kind:        cand.value.Kind().String(),
		}
		if cand.value.Kind() == KindScalar {
			record.Value = cand.value.ScalarValue()
		}
		if cand.value.Kind() == KindComputed {
			record.Value = cand.value.Expression()
		}
		trace.Candidates = append(trace.Candidates, record)
	}

	value, winner, err := run.resolvePath(path, TierUnknown, 0)
	if err != nil {
		return nil, trace, err
	}
	for i := range trace.Candidates {
		if trace.Candidates[i].Sequence == winner.entry.Sequence && trace.Candidates[i].Pattern == winner.pattern.String() {
			trace.Candidates[i].Selected = true
			trace.Candidates[i].Value = value
			break
		}
	}
	return value, trace, nil
}
