package models

import (
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy of classified failures.
type ErrorKind string

const (
	// ErrorKindDetectionFallbackUsed is informational; detection never fails.
	ErrorKindDetectionFallbackUsed ErrorKind = "detection_fallback_used"
	ErrorKindSchemaUnavailable     ErrorKind = "schema_unavailable"
	ErrorKindOracleUnparseable     ErrorKind = "oracle_unparseable"
	ErrorKindOracleUnavailable     ErrorKind = "oracle_unavailable"
	ErrorKindPlanRejected          ErrorKind = "plan_rejected"
	ErrorKindUnknownField          ErrorKind = "unknown_field"
	ErrorKindUnknownEntityRef      ErrorKind = "unknown_entity_reference"
	ErrorKindSyntaxError           ErrorKind = "syntax_error"
	ErrorKindTimeout               ErrorKind = "timeout"
	// ErrorKindInternal covers unexpected failures that still have to be
	// surfaced as a well-formed answer.
	ErrorKindInternal ErrorKind = "internal"
)

// ClassifiedError is a failure classified into the closed taxonomy.
// Field and Entity carry the offending names when the kind is correctable.
type ClassifiedError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Entity  string    `json:"entity,omitempty"`
	Rule    string    `json:"rule,omitempty"`
	Cause   error     `json:"-"`
}

// NewClassifiedError creates a classified error of the given kind.
func NewClassifiedError(kind ErrorKind, message string, cause error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	var parts []string
	parts = append(parts, string(e.Kind))
	if e.Rule != "" {
		parts = append(parts, fmt.Sprintf("rule=%s", e.Rule))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Entity != "" {
		parts = append(parts, fmt.Sprintf("entity=%s", e.Entity))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the retry controller may correct and retry.
// Whether the kind applies to a given plan variant is decided by the
// controller.
func (e *ClassifiedError) IsRetryable() bool {
	return e.Kind.Correctable()
}

// Correctable reports whether the kind can be repaired by the corrector.
func (k ErrorKind) Correctable() bool {
	switch k {
	case ErrorKindUnknownField, ErrorKindUnknownEntityRef, ErrorKindSyntaxError:
		return true
	default:
		return false
	}
}

// UserMessage returns the caller-facing summary for a terminal failure.
func (e *ClassifiedError) UserMessage() string {
	switch e.Kind {
	case ErrorKindSchemaUnavailable:
		return "Cannot answer this query right now: record definitions are unavailable."
	case ErrorKindOracleUnavailable:
		return "Cannot answer this query right now: the planning service is unavailable."
	case ErrorKindOracleUnparseable:
		return "Could not understand how to answer this query. Please rephrase it."
	case ErrorKindPlanRejected:
		return fmt.Sprintf("The proposed query was rejected (%s). Please rephrase your query.", e.Rule)
	case ErrorKindUnknownField:
		return fmt.Sprintf("The query referenced a field that does not exist (%s).", e.Field)
	case ErrorKindUnknownEntityRef:
		return fmt.Sprintf("The query referenced a record type that does not exist (%s).", e.Entity)
	case ErrorKindSyntaxError:
		return "The generated query could not be executed. Please rephrase your query."
	case ErrorKindTimeout:
		return "The query took too long to answer. Please try a narrower question."
	default:
		return "The query could not be answered."
	}
}

// ResultSet holds rows returned by an execution collaborator.
type ResultSet struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	// Count is set by count operations instead of Rows.
	Count *int64 `json:"count,omitempty"`
}

// ExecutionOutcome is the terminal result of one request: either a result
// set or a classified error.
type ExecutionOutcome struct {
	Success bool             `json:"success"`
	Result  *ResultSet       `json:"result,omitempty"`
	Error   *ClassifiedError `json:"error,omitempty"`
}

// Correction records a repair applied between attempts.
type Correction struct {
	Error       *ClassifiedError `json:"error"`
	Description string           `json:"description"`
}

// RetryState tracks one request through the retry controller.
type RetryState struct {
	Attempt int          `json:"attempt"`
	Plan    *Plan        `json:"plan"`
	History []Correction `json:"history,omitempty"`
}
