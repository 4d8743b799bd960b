package query

import (
	"context"
	"time"
)

type Request struct {
	SQL     string
	MaxRows int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ExecutionError hides the store's error text behind a generic message.
// The original error stays reachable through Unwrap for logging.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "query execution failed"
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
