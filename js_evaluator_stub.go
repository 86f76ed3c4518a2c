//go:build !js_eval

package config

// NewJSEvaluator returns nil without the js_eval build tag; computed values
// that need a JS engine must be forced in a binary built with it.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = applyJSEvaluatorOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
