package pipeline

import (
	"errors"

	"github.com/salesinsight/salesinsight/internal/nl2sql"
	"github.com/salesinsight/salesinsight/internal/query"
	"github.com/salesinsight/salesinsight/internal/sqlguard"
)

type Kind string

const (
	KindInvalidQuestion Kind = "invalid_question"
	KindGeneration      Kind = "generation_error"
	KindUnsafeQuery     Kind = "unsafe_query"
	KindExecution       Kind = "execution_error"
)

// Error is the only error type Ask and Stats return. Message is safe to show
// to callers; the cause is kept for logs.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the same question may succeed later.
func (e *Error) Retryable() bool {
	return e.Kind == KindExecution
}

func invalidQuestion(message string) *Error {
	return &Error{Kind: KindInvalidQuestion, Message: message}
}

func classify(err error) *Error {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}
	var unsafeErr *sqlguard.UnsafeQueryError
	if errors.As(err, &unsafeErr) {
		return &Error{Kind: KindUnsafeQuery, Message: "generated SQL was rejected: " + unsafeErr.Reason, cause: err}
	}
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) {
		return &Error{Kind: KindExecution, Message: "query execution failed, try again later", cause: err}
	}
	var genErr *nl2sql.GenerationError
	if errors.As(err, &genErr) {
		return &Error{Kind: KindGeneration, Message: "could not generate SQL for the question: " + genErr.Reason, cause: err}
	}
	return &Error{Kind: KindGeneration, Message: "could not generate SQL for the question", cause: err}
}
