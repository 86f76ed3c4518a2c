package config

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/Qwlouse/configv2/layering"
)

// Provenance records which assignment produced a leaf of the resolved tree.
type Provenance struct {
	Path     string `json:"path"`
	Pattern  string `json:"pattern"`
	Tier     Tier   `json:"tier"`
	TierName string `json:"tier_name"`
	Sequence uint64 `json:"sequence"`
	SourceID string `json:"source_id,omitempty"`
	Implicit bool   `json:"implicit"`
}

type leafRecord struct {
	path  Path
	value any
	prov  Provenance
}

// ResolvedTree is the fully materialised result of an evaluation run: every
// concrete leaf resolved at full visibility, assembled back into nested
// containers, with per-leaf provenance.
type ResolvedTree struct {
	runID  string
	order  []string
	leaves map[string]leafRecord
	root   map[string]any
}

// RunID returns the identifier of the evaluation run that built the tree.
func (t *ResolvedTree) RunID() string { return t.runID }

// Paths returns every resolved leaf path in sorted order.
func (t *ResolvedTree) Paths() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Get returns the resolved value at a concrete path. Interior paths return
// the assembled sub-container.
func (t *ResolvedTree) Get(path Path) (any, bool) {
	if record, ok := t.leaves[path.String()]; ok {
		return layering.Clone(record.value), true
	}
	current := any(t.root)
	for i := 0; i < path.Len(); i++ {
		segment := path.Segment(i)
		switch node := current.(type) {
		case map[string]any:
			child, ok := node[segmentKey(segment)]
			if !ok {
				return nil, false
			}
			current = child
		case []any:
			if segment.Kind() != SegmentIndex || segment.Index() < 0 || segment.Index() >= len(node) {
				return nil, false
			}
			current = node[segment.Index()]
		default:
			return nil, false
		}
	}
	return layering.Clone(current), true
}

// ProvenanceOf returns the winning assignment for a resolved leaf.
func (t *ResolvedTree) ProvenanceOf(path Path) (Provenance, bool) {
	record, ok := t.leaves[path.String()]
	if !ok {
		return Provenance{}, false
	}
	return record.prov, true
}

// Flatten returns the leaf values keyed by their path text.
func (t *ResolvedTree) Flatten() map[string]any {
	out := make(map[string]any, len(t.order))
	for _, key := range t.order {
		out[key] = layering.Clone(t.leaves[key].value)
	}
	return out
}

// AsMap returns a deep copy of the assembled nested tree.
func (t *ResolvedTree) AsMap() map[string]any {
	cloned, _ := layering.Clone(any(t.root)).(map[string]any)
	if cloned == nil {
		cloned = map[string]any{}
	}
	return cloned
}

// ToJSON serialises the nested tree for logging or transport helpers.
func (t *ResolvedTree) ToJSON() ([]byte, error) {
	return json.Marshal(t.root)
}

// buildTree resolves every concrete leaf contributed by the store at full
// visibility and assembles the results. Leaves shadowed by finer entries are
// skipped so a mapping entry and a later override inside it never collide.
func (run *EvaluationRun) buildTree() (*ResolvedTree, error) {
	entries := run.store.Entries()
	all := concreteLeaves(effectiveEntries(entries))
	leaves := dropShadowedPrefixes(all)

	tree := &ResolvedTree{
		runID:  run.id,
		leaves: make(map[string]leafRecord, len(leaves)),
	}
	var failures []error
	for _, leaf := range leaves {
		value, winner, err := run.resolvePath(leaf, TierUnknown, 0)
		if err != nil {
			if run.cfg.collectFailures {
				failures = append(failures, &IncompleteResolutionError{Path: leaf, Err: err})
				continue
			}
			return nil, &IncompleteResolutionError{Path: leaf, Err: err}
		}
		key := leaf.String()
		tree.leaves[key] = leafRecord{
			path:  leaf,
			value: value,
			prov: Provenance{
				Path:     key,
				Pattern:  winner.pattern.String(),
				Tier:     winner.entry.Tier,
				TierName: winner.entry.Tier.String(),
				Sequence: winner.entry.Sequence,
				SourceID: winner.entry.SourceID,
				Implicit: winner.implicit,
			},
		}
		tree.order = append(tree.order, key)
	}
	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	sort.Strings(tree.order)
	tree.root = assembleNested(tree)
	run.notifyTreeBuilt(len(tree.order))
	return tree, nil
}

// effectiveEntries drops assignments that lost write access: an entry below a
// path owned by a higher-ranked assignment contributes no leaves, so the
// ancestor's own value (a scalar included) survives into the tree.
func effectiveEntries(entries []Entry) []Entry {
	var out []Entry
	for _, entry := range entries {
		if deniedAt(entry.Path, entry, entries) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// dropShadowedPrefixes removes leaves that are strict prefixes of other
// leaves, keeping only the finest paths. A leaf is its own sole descendant
// exactly when nothing finer sits below it.
func dropShadowedPrefixes(leaves []Path) []Path {
	var out []Path
	for _, leaf := range leaves {
		if len(DescendantsOf(leaf, leaves)) == 1 {
			out = append(out, leaf)
		}
	}
	return out
}

type treeNode struct {
	value    any
	hasValue bool
	children map[string]*treeNode
	segments map[string]Segment
}

func newTreeNode() *treeNode {
	return &treeNode{
		children: make(map[string]*treeNode),
		segments: make(map[string]Segment),
	}
}

// assembleNested rebuilds nested containers from the flat leaf records. A
// node becomes a list only when every child is an index and the indexes run
// contiguously from zero; otherwise it becomes a mapping with stringified
// keys.
func assembleNested(tree *ResolvedTree) map[string]any {
	root := newTreeNode()
	for _, key := range tree.order {
		record := tree.leaves[key]
		node := root
		for i := 0; i < record.path.Len(); i++ {
			segment := record.path.Segment(i)
			childKey := segmentKey(segment)
			child, ok := node.children[childKey]
			if !ok {
				child = newTreeNode()
				node.children[childKey] = child
				node.segments[childKey] = segment
			}
			node = child
		}
		node.value = record.value
		node.hasValue = true
	}
	assembled, _ := root.collapse().(map[string]any)
	if assembled == nil {
		assembled = map[string]any{}
	}
	return assembled
}

func (n *treeNode) collapse() any {
	if len(n.children) == 0 {
		return n.value
	}
	if indexes, ok := n.contiguousIndexes(); ok {
		out := make([]any, len(indexes))
		for i, childKey := range indexes {
			out[i] = n.children[childKey].collapse()
		}
		return out
	}
	out := make(map[string]any, len(n.children))
	for childKey, child := range n.children {
		out[childKey] = child.collapse()
	}
	return out
}

// contiguousIndexes returns child keys ordered by index when every child is
// an index segment covering 0..n-1 without gaps.
func (n *treeNode) contiguousIndexes() ([]string, bool) {
	ordered := make([]string, len(n.children))
	for childKey, segment := range n.segments {
		if segment.Kind() != SegmentIndex {
			return nil, false
		}
		idx := segment.Index()
		if idx < 0 || idx >= len(ordered) || ordered[idx] != "" {
			return nil, false
		}
		ordered[idx] = childKey
	}
	return ordered, true
}
