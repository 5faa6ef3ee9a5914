package llm

import "errors"

// ErrQuotaExceeded means the user hit their daily call limit for the
// purpose bucket. Maps to HTTP 429.
var ErrQuotaExceeded = errors.New("daily call limit reached")

// ErrTokenBudgetExceeded means the purpose bucket's remaining token budget
// cannot cover the request estimate. Maps to HTTP 429.
var ErrTokenBudgetExceeded = errors.New("token budget exhausted")

// GenerationError wraps a backend failure. Maps to HTTP 502.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Cause.Error() }
func (e *GenerationError) Unwrap() error { return e.Cause }
