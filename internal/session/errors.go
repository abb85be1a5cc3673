package session

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorClass is the small set of server error categories the orchestrator
// treats specially. Everything else is ClassOther and surfaces as fatal.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassInvalidSchema
	ClassLockUnavailable
)

// SQLSTATE codes the core must recognize.
const (
	CodeInvalidSchemaName = "3F000"
	CodeLockNotAvailable  = "55P03"
)

// ServerError wraps a SQLSTATE-bearing error returned by an ExecLenient call.
// It is never returned for connection-level failures — those surface as a
// plain error instead.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Class classifies the server error by its SQLSTATE code.
func (e *ServerError) Class() ErrorClass {
	switch e.Code {
	case CodeInvalidSchemaName:
		return ClassInvalidSchema
	case CodeLockNotAvailable:
		return ClassLockUnavailable
	default:
		return ClassOther
	}
}

// AsServerError extracts a ServerError from a pgx/pgconn error chain.
func AsServerError(err error) (*ServerError, bool) {
	if err == nil {
		return nil, false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ServerError{Code: pgErr.Code, Message: pgErr.Message}, true
	}
	return nil, false
}
