package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure for callers.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindStorage        Kind = "storage"
	KindGeneration     Kind = "generation"
	KindAuthentication Kind = "authentication"
	KindPublish        Kind = "publish"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrStorage        = errors.New("scratch storage failed")
	ErrGeneration     = errors.New("metadata generation failed")
	ErrAuthentication = errors.New("authentication required")
	ErrPublish        = errors.New("publish failed")
	ErrTimeout        = errors.New("operation timed out")
	ErrInternal       = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindValidation:     ErrValidation,
	KindStorage:        ErrStorage,
	KindGeneration:     ErrGeneration,
	KindAuthentication: ErrAuthentication,
	KindPublish:        ErrPublish,
	KindTimeout:        ErrTimeout,
	KindInternal:       ErrInternal,
}

// Error is returned by Run for every failed run.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// AuthURL is set for authentication failures and points at the Google consent flow.
	AuthURL string
	// Status is the upstream HTTP status when the platform rejected a call.
	Status int
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, sentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, sentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrValidation) works.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// HTTPStatus maps the failure onto the response status the API returns.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindPublish:
		if e.Status == http.StatusForbidden {
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}

func fail(kind Kind, op string, err error) *Error {
	if kind != KindValidation && kind != KindAuthentication && errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: "validate", Err: fmt.Errorf(format, args...)}
}
