package config

import (
	"fmt"

	"github.com/Qwlouse/configv2/internal/hydrate"
)

// Hydrate decodes the assembled tree into a typed struct through its JSON
// tags.
func Hydrate[T any](tree *ResolvedTree) (T, error) {
	decoder := hydrate.NewDecoder[T]()
	return decoder.Decode(hydrate.Context{RunID: tree.RunID()}, tree.AsMap())
}

// HydrateAt decodes the sub-container at a concrete path into a typed
// struct.
func HydrateAt[T any](tree *ResolvedTree, path Path) (T, error) {
	var zero T
	value, ok := tree.Get(path)
	if !ok {
		return zero, &UnresolvedPathError{Path: path}
	}
	payload, ok := value.(map[string]any)
	if !ok {
		return zero, fmt.Errorf("config: value at %q is %T, not a mapping", path, value)
	}
	decoder := hydrate.NewDecoder[T]()
	return decoder.Decode(hydrate.Context{RunID: tree.RunID(), Path: path.String()}, payload)
}
