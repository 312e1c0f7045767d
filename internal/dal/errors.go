package dal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Kind places a data-access failure in the closed error taxonomy. Every
// error leaving this package carries exactly one Kind, so callers can handle
// the set exhaustively instead of string-matching.
type Kind uint8

const (
	// KindDAL is a generic data-access failure, including a creation call
	// that unexpectedly produced no row.
	KindDAL Kind = iota

	// KindNotFound means the targeted entity does not exist: zero rows
	// returned or affected for a specific identifier.
	KindNotFound

	// KindIntegrity means a uniqueness or referential constraint was
	// violated.
	KindIntegrity
)

// Error is the single error type produced by the DAL.
type Error struct {
	Kind    Kind
	Message string

	// Attribute names the conflicting attribute for integrity errors when
	// it could be determined ("username", "email"); empty otherwise.
	Attribute string

	// Err is the underlying driver error, preserved for inspection.
	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "data access error"
}

func (e *Error) Unwrap() error { return e.Err }

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds a generic KindDAL error.
func Errorf(format string, args ...any) *Error {
	return &Error{Kind: KindDAL, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a DAL not-found error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsIntegrity reports whether err is a DAL integrity error.
func IsIntegrity(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindIntegrity
}

// Messages surfaced for the two uniqueness violations the schema defines.
// Any other integrity violation keeps the server's original message.
const (
	msgUsernameTaken = "Username already exists."
	msgEmailTaken    = "Email already exists."
)

// classify translates a gateway failure into the taxonomy. The structured
// SQLSTATE on *pq.Error is consulted first; attribute attribution falls back
// to substring inspection of the constraint name and message text, which is
// deliberately best-effort. Unmatched integrity violations still surface as
// integrity errors with the original message, never as generic failures.
func classify(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		text := strings.ToLower(pqErr.Constraint + " " + pqErr.Message + " " + pqErr.Detail)
		switch {
		case strings.Contains(text, "username"):
			return &Error{Kind: KindIntegrity, Attribute: "username", Message: msgUsernameTaken, Err: err}
		case strings.Contains(text, "email"):
			return &Error{Kind: KindIntegrity, Attribute: "email", Message: msgEmailTaken, Err: err}
		}
		return &Error{Kind: KindIntegrity, Message: pqErr.Message, Err: err}
	}

	return &Error{Kind: KindDAL, Err: err}
}
