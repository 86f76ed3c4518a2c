package config

// Evaluate runs the registered scopes against a seed store and materialises
// the resolved tree. The seed store is cloned first, so evaluating the same
// store twice with the same registrations produces identical trees.
//
// Scopes execute tier by tier from strongest to weakest; within a tier they
// run in registration order. Every value a scope reads resolves against the
// assignments already committed when the read happens, so stronger tiers are
// always fully in place before weaker ones compute their defaults.
func Evaluate(seed *Store, registrations []ScopeRegistration, opts ...Option) (*ResolvedTree, error) {
	cfg := applyOptions(opts)
	run := newEvaluationRun(seed, cfg)
	if err := run.executeScopes(registrations); err != nil {
		return nil, err
	}
	return run.buildTree()
}

// Resolve answers a single concrete path against a store at full visibility
// without running any scopes. It is the lookup counterpart of Evaluate for
// stores that were populated directly.
func Resolve(store *Store, path Path, opts ...Option) (any, error) {
	cfg := applyOptions(opts)
	run := newEvaluationRun(store, cfg)
	value, _, err := run.resolvePath(path, TierUnknown, 0)
	return value, err
}
