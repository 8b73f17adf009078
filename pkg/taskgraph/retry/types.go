package retry

import "fmt"

// StatusError is a non-success HTTP response from an external service.
type StatusError struct {
	Service    string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseError indicates a response body that could not be used.
type ParseError struct {
	Service string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Service != "" {
		return fmt.Sprintf("%s: parse response: %s", e.Service, msg)
	}
	return "parse response: " + msg
}

// Unwrap returns the underlying decode error, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}
