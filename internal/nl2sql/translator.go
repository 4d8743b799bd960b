package nl2sql

import (
	"context"
	"fmt"
)

type Request struct {
	Question string `json:"question"`
	Schema   string `json:"schema"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// GenerationError reports that no usable SQL statement came back from the
// language model: the call failed, timed out, was throttled or returned
// nothing parseable.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "sql generation failed: " + e.Reason
	}
	return fmt.Sprintf("sql generation failed: %s: %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationError(reason string, err error) error {
	return &GenerationError{Reason: reason, Err: err}
}
