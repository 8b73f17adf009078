// Package retry classifies failures from the external services that node
// bodies call (completion providers, search, embeddings) and retries the
// transient ones with exponential backoff.
package retry

import (
	"errors"
	"fmt"
	"net"
)

// Category represents how a failure should be handled.
type Category int

const (
	// CategoryTransient indicates another attempt will likely succeed.
	// Examples: rate limits, gateway timeouts, dropped connections.
	CategoryTransient Category = iota

	// CategoryPermanent indicates another attempt will fail the same way.
	// Examples: bad credentials, unknown model, malformed request.
	CategoryPermanent

	// CategoryMalformed indicates the service answered but the answer could
	// not be used. Regenerating may help; repeating the identical request
	// usually does not.
	CategoryMalformed
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its category and the number of attempts made.
type Error struct {
	Err      error
	Category Category
	Attempts int
	// Op names the operation, e.g. "anthropic messages" or "web search".
	Op string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)", e.Op, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(err error, op string) *Error {
	return &Error{Err: err, Category: CategoryTransient, Op: op}
}

// Permanent marks err as not worth retrying.
func Permanent(err error, op string) *Error {
	return &Error{Err: err, Category: CategoryPermanent, Op: op}
}

// Categorize determines how err should be handled. Unknown errors are
// permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *Error
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return categorizeStatus(statusErr.StatusCode)
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return CategoryMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	return CategoryPermanent
}

func categorizeStatus(code int) Category {
	switch {
	case code == 408, code == 409, code == 425, code == 429:
		return CategoryTransient
	case code == 529, code >= 500:
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
