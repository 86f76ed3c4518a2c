package config

import (
	"time"

	"github.com/Qwlouse/configv2/pkg/activity"
)

// EvalContext carries the inputs needed when forcing a computed value.
// Bindings holds the resolved configuration values the expression may
// reference; Path names the assignment being forced.
type EvalContext struct {
	Bindings map[string]any
	Args     map[string]any
	Metadata map[string]any
	Now      *time.Time
	Path     string
	Tier     Tier
	SourceID string
}

func (ctx EvalContext) withDefaultNow() EvalContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx EvalContext) withDefaultMaps() EvalContext {
	if ctx.Bindings == nil {
		ctx.Bindings = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

// label identifies the forcing site for error messages and logs.
func (ctx EvalContext) label() string {
	if ctx.Path == "" {
		return "unknown"
	}
	if ctx.Tier.Valid() {
		return ctx.Tier.String() + ":" + ctx.Path
	}
	return ctx.Path
}

// Evaluator executes computed-value expressions against an eval context.
// References reports the top-level identifiers an expression reads, so the
// resolver can bind exactly the paths the computation depends on; engines
// that resolve reads dynamically may return nil.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledExpr, error)
	References(expr string) ([]string, error)
}

// CompiledExpr represents a reusable expression program.
type CompiledExpr interface {
	Evaluate(ctx EvalContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures an evaluation run.
type Option func(*evalConfig)

type evalConfig struct {
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	logger          EvaluatorLogger
	activityHooks   activity.Hooks
	args            map[string]any
	metadata        map[string]any
	collectFailures bool
}

func applyOptions(opts []Option) evalConfig {
	cfg := evalConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEvaluator configures the expression engine used to force computed
// values. Defaults to the expr engine.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *evalConfig) {
		cfg.evaluator = e
	}
}

// WithActivityHooks registers hooks receiving read, write, force and commit
// events during evaluation.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *evalConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.activityHooks = append(cfg.activityHooks, hook)
			}
		}
	}
}

// WithFailFast controls how the tree builder reports unresolvable leaves.
// Enabled (the default) aborts at the first failure; disabled resolves every
// leaf and returns the failures joined.
func WithFailFast(enabled bool) Option {
	return func(cfg *evalConfig) {
		cfg.collectFailures = !enabled
	}
}

// WithArgs exposes external arguments to computed-value expressions under the
// "args" binding.
func WithArgs(args map[string]any) Option {
	return func(cfg *evalConfig) {
		cfg.args = copyMetadata(args)
	}
}

// WithMetadata exposes run metadata to computed-value expressions under the
// "metadata" binding.
func WithMetadata(metadata map[string]any) Option {
	return func(cfg *evalConfig) {
		cfg.metadata = copyMetadata(metadata)
	}
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
