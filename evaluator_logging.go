package config

import "time"

// EvaluatorLogEvent describes the forcing of a computed value.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Path     string
	Tier     Tier
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records computed-value forcing events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// WithEvaluatorLogger attaches an evaluator logger to the evaluation run.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *evalConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}
