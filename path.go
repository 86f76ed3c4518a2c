package config

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind identifies how a single path segment addresses a key.
type SegmentKind int

const (
	// SegmentKey addresses a mapping entry by string key.
	SegmentKey SegmentKind = iota
	// SegmentIndex addresses a list element (or an integer-keyed mapping
	// entry, see the disambiguation note on ResolvedTree).
	SegmentIndex
	// SegmentWildcard matches exactly one arbitrary key at its position.
	SegmentWildcard
)

// Segment is a single element of a dotted path.
type Segment struct {
	kind  SegmentKind
	key   string
	index int
}

// Key constructs a literal string-key segment.
func Key(name string) Segment {
	return Segment{kind: SegmentKey, key: name}
}

// Index constructs an integer-index segment.
func Index(i int) Segment {
	return Segment{kind: SegmentIndex, index: i}
}

// Wildcard constructs a segment matching any single key.
func Wildcard() Segment {
	return Segment{kind: SegmentWildcard}
}

// Kind returns the segment kind.
func (s Segment) Kind() SegmentKind { return s.kind }

// Key returns the string key for SegmentKey segments.
func (s Segment) Key() string { return s.key }

// Index returns the numeric index for SegmentIndex segments.
func (s Segment) Index() int { return s.index }

// String renders the segment in canonical form. String keys that are not
// identifiers are quoted so the rendering stays unambiguous.
func (s Segment) String() string {
	switch s.kind {
	case SegmentIndex:
		return "[" + strconv.Itoa(s.index) + "]"
	case SegmentWildcard:
		return "*"
	default:
		if isIdentifier(s.key) {
			return s.key
		}
		return "['" + s.key + "']"
	}
}

// equal reports literal equality. An integer index and a string key carrying
// the same digits address the same entry until the tree builder decides
// between list and mapping, so they compare equal here.
func (s Segment) equal(other Segment) bool {
	if s.kind == other.kind {
		switch s.kind {
		case SegmentIndex:
			return s.index == other.index
		case SegmentWildcard:
			return true
		default:
			return s.key == other.key
		}
	}
	if s.kind == SegmentIndex && other.kind == SegmentKey {
		return strconv.Itoa(s.index) == other.key
	}
	if s.kind == SegmentKey && other.kind == SegmentIndex {
		return s.key == strconv.Itoa(other.index)
	}
	return false
}

// matches reports segment compatibility for pattern matching: literal
// equality, or either side being a wildcard.
func (s Segment) matches(other Segment) bool {
	if s.kind == SegmentWildcard || other.kind == SegmentWildcard {
		return true
	}
	return s.equal(other)
}

// Path is an immutable sequence of segments addressing a configuration value.
type Path struct {
	segments []Segment
}

// NewPath constructs a path from explicit segments.
func NewPath(segments ...Segment) Path {
	copied := make([]Segment, len(segments))
	copy(copied, segments)
	return Path{segments: copied}
}

// ParsePath parses a dotted path such as "layers.hidden1.size",
// "layers.*.size" or "layers[0].size". Integer segments may be written in
// either bracket or dotted form. Returns a MalformedPathError when the text
// contains empty segments, unbalanced brackets, or invalid characters.
func ParsePath(text string) (Path, error) {
	if strings.TrimSpace(text) == "" {
		return Path{}, &MalformedPathError{Text: text, Reason: "path must not be empty"}
	}
	var segments []Segment
	rest := text
	pos := 0
	expectSegment := true
	for len(rest) > 0 {
		switch {
		case rest[0] == '.':
			if expectSegment {
				return Path{}, &MalformedPathError{Text: text, Position: pos, Reason: "empty segment"}
			}
			rest = rest[1:]
			pos++
			expectSegment = true
		case rest[0] == '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Path{}, &MalformedPathError{Text: text, Position: pos, Reason: "unclosed bracket"}
			}
			inner := rest[1:end]
			segment, err := parseBracket(inner)
			if err != nil {
				return Path{}, &MalformedPathError{Text: text, Position: pos, Reason: err.Error()}
			}
			segments = append(segments, segment)
			rest = rest[end+1:]
			pos += end + 1
			expectSegment = false
		default:
			stop := strings.IndexAny(rest, ".[")
			if stop < 0 {
				stop = len(rest)
			}
			raw := rest[:stop]
			segment, err := parseBare(raw)
			if err != nil {
				return Path{}, &MalformedPathError{Text: text, Position: pos, Reason: err.Error()}
			}
			segments = append(segments, segment)
			rest = rest[stop:]
			pos += stop
			expectSegment = false
		}
	}
	if expectSegment {
		return Path{}, &MalformedPathError{Text: text, Position: pos, Reason: "empty segment"}
	}
	return Path{segments: segments}, nil
}

// MustParsePath parses text and panics on failure. Intended for literals in
// tests and examples.
func MustParsePath(text string) Path {
	path, err := ParsePath(text)
	if err != nil {
		panic(err)
	}
	return path
}

func parseBare(raw string) (Segment, error) {
	if raw == "*" {
		return Wildcard(), nil
	}
	if index, err := strconv.Atoi(raw); err == nil {
		return Index(index), nil
	}
	if !isIdentifier(raw) {
		return Segment{}, fmt.Errorf("invalid segment %q", raw)
	}
	return Key(raw), nil
}

func parseBracket(inner string) (Segment, error) {
	if inner == "" {
		return Segment{}, fmt.Errorf("empty bracket segment")
	}
	if inner == "*" {
		return Wildcard(), nil
	}
	if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') {
		if inner[len(inner)-1] != inner[0] {
			return Segment{}, fmt.Errorf("unterminated quoted key %q", inner)
		}
		return Key(inner[1 : len(inner)-1]), nil
	}
	index, err := strconv.Atoi(inner)
	if err != nil {
		return Segment{}, fmt.Errorf("invalid index %q", inner)
	}
	return Index(index), nil
}

func isIdentifier(value string) bool {
	if value == "" {
		return false
	}
	for i, r := range value {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// Segment returns the i-th segment.
func (p Path) Segment(i int) Segment { return p.segments[i] }

// Segments returns a defensive copy of the segment slice.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Prefix returns the path consisting of the first n segments.
func (p Path) Prefix(n int) Path {
	return NewPath(p.segments[:n]...)
}

// Suffix returns the path with the first n segments removed.
func (p Path) Suffix(n int) Path {
	return NewPath(p.segments[n:]...)
}

// Child returns a new path with segment appended.
func (p Path) Child(segment Segment) Path {
	combined := make([]Segment, 0, len(p.segments)+1)
	combined = append(combined, p.segments...)
	combined = append(combined, segment)
	return Path{segments: combined}
}

// Join returns a new path with other appended.
func (p Path) Join(other Path) Path {
	combined := make([]Segment, 0, len(p.segments)+len(other.segments))
	combined = append(combined, p.segments...)
	combined = append(combined, other.segments...)
	return Path{segments: combined}
}

// String renders the path in canonical dotted form, e.g.
// "layers.*.size" or "layers[0].size".
func (p Path) String() string {
	var builder strings.Builder
	for i, segment := range p.segments {
		rendered := segment.String()
		if i > 0 && rendered[0] != '[' {
			builder.WriteByte('.')
		}
		builder.WriteString(rendered)
	}
	return builder.String()
}

// Equal reports literal path equality.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if !p.segments[i].equal(other.segments[i]) {
			return false
		}
	}
	return true
}

// Matches reports whether the two paths have equal length and every segment
// pair is literal-equal or one side is a wildcard.
func (p Path) Matches(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if !p.segments[i].matches(other.segments[i]) {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether p matches a leading portion of other, treating
// wildcards on either side as compatible.
func (p Path) IsPrefixOf(other Path) bool {
	if len(p.segments) > len(other.segments) {
		return false
	}
	for i := range p.segments {
		if !p.segments[i].matches(other.segments[i]) {
			return false
		}
	}
	return true
}

// IsConcrete reports whether the path contains no wildcard segments.
func (p Path) IsConcrete() bool {
	for _, segment := range p.segments {
		if segment.kind == SegmentWildcard {
			return false
		}
	}
	return true
}

// Specificity counts the non-wildcard segments. A more specific pattern beats
// a broader wildcard at equal tier and sequence.
func (p Path) Specificity() int {
	count := 0
	for _, segment := range p.segments {
		if segment.kind != SegmentWildcard {
			count++
		}
	}
	return count
}

// DescendantsOf returns the members of the concrete path universe that the
// pattern touches: paths it matches outright plus paths it is a prefix of
// (nested-mapping coverage).
func DescendantsOf(pattern Path, concrete []Path) []Path {
	var out []Path
	for _, candidate := range concrete {
		if !candidate.IsConcrete() {
			continue
		}
		if pattern.Matches(candidate) || pattern.IsPrefixOf(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}
