package config

import (
	"errors"
	"testing"
)

func TestParsePathForms(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
		len  int
	}{
		{name: "dotted", text: "layers.hidden1.size", want: "layers.hidden1.size", len: 3},
		{name: "index", text: "layers[0].size", want: "layers[0].size", len: 3},
		{name: "quoted key", text: "limits['max-daily']", want: "limits['max-daily']", len: 2},
		{name: "wildcard", text: "layers.*.dropout", want: "layers.*.dropout", len: 3},
		{name: "bracket wildcard", text: "layers[*].size", want: "layers.*.size", len: 3},
		{name: "single", text: "seed", want: "seed", len: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := ParsePath(tc.text)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.text, err)
			}
			if path.Len() != tc.len {
				t.Fatalf("expected %d segments, got %d", tc.len, path.Len())
			}
			if path.String() != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, path.String())
			}
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "blank", text: "   "},
		{name: "double dot", text: "a..b"},
		{name: "trailing dot", text: "a.b."},
		{name: "leading dot", text: ".a"},
		{name: "unclosed bracket", text: "a[0"},
		{name: "empty bracket", text: "a[]"},
		{name: "bad identifier", text: "a.b c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePath(tc.text)
			if err == nil {
				t.Fatalf("expected error for %q", tc.text)
			}
			if !errors.Is(err, ErrMalformedPath) {
				t.Fatalf("expected ErrMalformedPath, got %v", err)
			}
			var malformed *MalformedPathError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedPathError, got %T", err)
			}
		})
	}
}

func TestSegmentIndexKeyEquivalence(t *testing.T) {
	byIndex := MustParsePath("layers[0].size")
	byKey := NewPath(Key("layers"), Key("0"), Key("size"))
	if !byIndex.Matches(byKey) {
		t.Fatalf("expected %q to match %q", byIndex, byKey)
	}
	if !byKey.Matches(byIndex) {
		t.Fatalf("expected %q to match %q", byKey, byIndex)
	}
}

func TestPathMatches(t *testing.T) {
	cases := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"layers.*.size", "layers.hidden1.size", true},
		{"layers.*.size", "layers.hidden1.dropout", false},
		{"layers.*.size", "layers.hidden1", false},
		{"layers.*", "layers.hidden1", true},
		{"*.size", "hidden1.size", true},
		{"layers.hidden1.size", "layers.hidden1.size", true},
		{"layers.*.*", "layers.hidden1.size", true},
	}
	for _, tc := range cases {
		pattern := MustParsePath(tc.pattern)
		target := MustParsePath(tc.target)
		if got := pattern.Matches(target); got != tc.want {
			t.Fatalf("Matches(%q, %q) = %v, want %v", tc.pattern, tc.target, got, tc.want)
		}
	}
}

func TestPathPrefixAndConcrete(t *testing.T) {
	prefix := MustParsePath("layers.hidden1")
	full := MustParsePath("layers.hidden1.size")
	if !prefix.IsPrefixOf(full) {
		t.Fatalf("expected %q to be a prefix of %q", prefix, full)
	}
	if full.IsPrefixOf(prefix) {
		t.Fatalf("did not expect %q to be a prefix of %q", full, prefix)
	}
	if full.IsPrefixOf(full) {
		t.Fatalf("a path is not its own strict prefix")
	}
	if !full.IsConcrete() {
		t.Fatalf("expected %q to be concrete", full)
	}
	if MustParsePath("layers.*.size").IsConcrete() {
		t.Fatalf("wildcard paths are not concrete")
	}
}

func TestPathSpecificity(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"layers.hidden1.size", 3},
		{"layers.*.size", 2},
		{"*.*.size", 1},
		{"layers[0].size", 3},
	}
	for _, tc := range cases {
		if got := MustParsePath(tc.text).Specificity(); got != tc.want {
			t.Fatalf("Specificity(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestDescendantsOf(t *testing.T) {
	concrete := []Path{
		MustParsePath("layers.hidden1.size"),
		MustParsePath("layers.hidden2.size"),
		MustParsePath("layers.hidden1.dropout"),
		MustParsePath("batch_size"),
	}
	got := DescendantsOf(MustParsePath("layers.*.size"), concrete)
	if len(got) != 2 {
		t.Fatalf("expected 2 descendants, got %d: %v", len(got), got)
	}
	got = DescendantsOf(MustParsePath("layers.hidden1"), concrete)
	if len(got) != 2 {
		t.Fatalf("expected 2 descendants under prefix, got %d: %v", len(got), got)
	}
}

func TestPathJoinAndSlicing(t *testing.T) {
	base := MustParsePath("layers.hidden1")
	joined := base.Join(MustParsePath("size"))
	if joined.String() != "layers.hidden1.size" {
		t.Fatalf("unexpected join result %q", joined)
	}
	if got := joined.Prefix(2).String(); got != "layers.hidden1" {
		t.Fatalf("unexpected prefix %q", got)
	}
	if got := joined.Suffix(1).String(); got != "hidden1.size" {
		t.Fatalf("unexpected suffix %q", got)
	}
	// Join must not alias the receiver's backing array.
	other := base.Join(MustParsePath("dropout"))
	if joined.String() != "layers.hidden1.size" || other.String() != "layers.hidden1.dropout" {
		t.Fatalf("join aliased storage: %q / %q", joined, other)
	}
}
