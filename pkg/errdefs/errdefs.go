// Package errdefs defines the closed set of error kinds the gateway can
// surface and their mapping to HTTP statuses and user-facing messages.
//
// Every failure crossing a component boundary (inbound validation, auth
// preflight, downstream service calls, response parsing) is wrapped in an
// *Error so the HTTP layer can classify it with errors.As and pick the
// right status without inspecting downstream internals.
package errdefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one class of gateway failure.
type Kind int

const (
	// KindValidation covers missing or malformed fields in the inbound body.
	KindValidation Kind = iota
	// KindMissingAuth means the Authorization header was absent.
	KindMissingAuth
	// KindInvalidAuthFormat means the Authorization header was not a bearer scheme.
	KindInvalidAuthFormat
	// KindInvalidToken means the presented credential failed verification.
	KindInvalidToken
	// KindExpiredJWT means the presented JWT was expired.
	KindExpiredJWT
	// KindConnection means a downstream transport failure after retries.
	KindConnection
	// KindTimeout means a downstream deadline was exceeded.
	KindTimeout
	// KindResponse means a downstream 4xx/5xx other than 403.
	KindResponse
	// KindAuthorization means a downstream 403.
	KindAuthorization
	// KindInternal covers protocol parse failures and everything unexpected.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMissingAuth:
		return "missing_auth"
	case KindInvalidAuthFormat:
		return "invalid_auth_format"
	case KindInvalidToken:
		return "invalid_token"
	case KindExpiredJWT:
		return "expired_jwt"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindResponse:
		return "response"
	case KindAuthorization:
		return "authorization"
	default:
		return "internal"
	}
}

// Error is a classified gateway failure. Service and Endpoint identify the
// downstream call that failed, when there is one. StatusCode carries the
// downstream HTTP status for KindResponse.
type Error struct {
	Kind       Kind
	Service    string
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Service != "" && e.Endpoint != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Service, e.Endpoint, msg)
	}
	if e.Service != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Service, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to the status the gateway responds with.
// KindResponse preserves the downstream status when it is a valid error
// status, otherwise 500.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindMissingAuth, KindInvalidAuthFormat:
		return http.StatusBadRequest
	case KindInvalidToken, KindExpiredJWT, KindAuthorization:
		return http.StatusForbidden
	case KindConnection:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindResponse:
		if e.StatusCode >= 400 && e.StatusCode < 600 {
			return e.StatusCode
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage renders the client-facing message. Downstream failures carry
// an operational hint in local deployments and a generic notice in
// production, so internal topology never leaks to end users.
func (e *Error) UserMessage(localMode bool) string {
	switch e.Kind {
	case KindConnection, KindTimeout:
		if e.Service == "" {
			break
		}
		if localMode {
			if e.Kind == KindTimeout {
				return fmt.Sprintf("%s service timeout", e.Service)
			}
			return fmt.Sprintf("cannot reach the %s service, restart the %s service", e.Service, e.Service)
		}
		return "service unavailable, contact support"
	case KindResponse, KindAuthorization:
		if !localMode && e.Kind == KindResponse && e.StatusCode >= 500 {
			return "service unavailable, contact support"
		}
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return msg
}

// New builds an Error of the given kind without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithCall returns a copy of the error annotated with the downstream service
// and endpoint it came from. Annotating an already annotated error is a
// no-op so the innermost call site wins.
func WithCall(err *Error, service, endpoint string) *Error {
	if err.Service != "" {
		return err
	}
	out := *err
	out.Service = service
	out.Endpoint = endpoint
	return &out
}

// AsError extracts an *Error from an error chain. Unclassified errors come
// back as KindInternal so callers always get a mappable kind.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// WriteHTTP renders err as the gateway's JSON error body:
//
//	{"error": {"type": "<kind>", "message": "<user message>"}}
//
// with the status from HTTPStatus. Unclassified errors render as internal.
func WriteHTTP(w http.ResponseWriter, err error, localMode bool) {
	e := AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"type":    e.Kind.String(),
			"message": e.UserMessage(localMode),
		},
	})
}
