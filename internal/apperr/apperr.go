// Package apperr defines the error taxonomy shared by both HTTP
// boundaries: validation, upstream timeout/network, configuration,
// idempotency conflict, and transient-internal. Outer layers map a
// Category to a stable status code and JSON body; inner layers only need
// to pick the right category when wrapping an error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies an error for the purpose of HTTP status mapping
// and logging severity.
type Category int

const (
	// Validation covers schema or input mismatches.
	Validation Category = iota
	// Upstream covers timeouts or network failures calling an external
	// dependency (LLM, cloud RAG endpoint, integrator).
	Upstream
	// Configuration covers missing secrets, unknown providers,
	// dimension mismatches, or missing indexes — all fatal at boot.
	Configuration
	// IdempotencyConflict covers a duplicate feedback_id or eval row;
	// not an error, just counted by the caller.
	IdempotencyConflict
	// Transient covers internal failures that are logged at warning
	// and never propagated to the caller (best-effort calls).
	Transient
)

func (c Category) String() string {
	switch c {
	case Validation:
		return "validation"
	case Upstream:
		return "upstream"
	case Configuration:
		return "configuration"
	case IdempotencyConflict:
		return "idempotency_conflict"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a categorized, wrapped error.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a category and an operation label describing where
// the failure occurred (e.g. "retrieval.Retrieve").
func New(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err}
}

// CategoryOf returns the Category of err if it (or something it wraps)
// is an *Error, and false otherwise.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return 0, false
}

// Is reports whether err is categorized as cat.
func Is(err error, cat Category) bool {
	c, ok := CategoryOf(err)
	return ok && c == cat
}

// StatusCode maps err's Category to the HTTP status an outer boundary
// should return for it (spec.md section 7). An uncategorized error
// (CategoryOf returns false) maps to 500, the safe default for an
// unexpected internal failure.
func StatusCode(err error) int {
	cat, ok := CategoryOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch cat {
	case Validation:
		return http.StatusBadRequest
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
