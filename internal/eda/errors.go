package eda

import "fmt"

// ConfigError reports an invalid component graph. It is raised before any
// iteration runs.
type ConfigError struct {
	Component string
	Reason    string
	Err       error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s: %s", e.Component, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NumericalError reports a non-finite value produced by a model. It is a
// defect, not a recoverable condition.
type NumericalError struct {
	Model  string
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical error in %s: %s", e.Model, e.Reason)
}

// EvaluationError reports a failed fitness evaluation. The generation in
// which it happened is discarded.
type EvaluationError struct {
	Index int
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of candidate %d failed: %v", e.Index, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ResumeError reports a checkpoint that does not match the reconstructed
// component graph.
type ResumeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ResumeError) Error() string {
	msg := fmt.Sprintf("resume error: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResumeError) Unwrap() error { return e.Err }
