// Package apperr defines the typed error sum used across the identity core.
//
// Every error that should reach a client carries a stable machine-readable
// Key, an HTTP Status, and optional Info for the response body. Internal
// (500) errors wrap a Cause that is logged but never serialized to clients.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets errors the way spec §7 does.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindServer       Kind = "server"
)

// Error is the typed error sum. It satisfies the standard error interface.
type Error struct {
	Key    string
	Status int
	Kind   Kind
	Info   map[string]any
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Key, e.Cause)
	}
	return e.Key
}

func (e *Error) Unwrap() error { return e.Cause }

// Wire is the JSON body shape described in spec §6.
type Wire struct {
	Key   string         `json:"key"`
	Status int           `json:"status"`
	Info  map[string]any `json:"info,omitempty"`
	Cause string         `json:"cause,omitempty"`
}

func New(kind Kind, status int, key string, info map[string]any) *Error {
	return &Error{Key: key, Status: status, Kind: kind, Info: info}
}

func Validation(key string, info map[string]any) *Error {
	return New(KindValidation, http.StatusBadRequest, key, info)
}

func Unauthorized(key string) *Error {
	return New(KindUnauthorized, http.StatusUnauthorized, key, nil)
}

func Forbidden(key string) *Error {
	return New(KindForbidden, http.StatusForbidden, key, nil)
}

func NotFound(key string) *Error {
	return New(KindNotFound, http.StatusNotFound, key, nil)
}

func RateLimited(key string) *Error {
	return New(KindRateLimited, http.StatusTooManyRequests, key, nil)
}

// Server wraps a programmer error / upstream failure as a 500. The cause is
// never serialized to the client, only logged at the boundary.
func Server(key string, cause error) *Error {
	return &Error{Key: key, Status: http.StatusInternalServerError, Kind: KindServer, Cause: cause}
}

// As is a small helper for call sites that want to type-switch without
// importing errors.As boilerplate everywhere.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// NormalizeSessionError implements the session-store error-normalization
// rule from spec §4.3: every non-500 session error is surfaced as 401 at
// the boundary; 500s pass through unchanged.
func NormalizeSessionError(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		if e.Kind == KindServer {
			return e
		}
		return Unauthorized(e.Key)
	}
	return Unauthorized("session.unknown")
}

// WriteHTTP writes the error as the stable JSON wire format. Unknown error
// types are coerced to a generic 500 so a missed typed-error never leaks a
// raw Go error string to a client.
func WriteHTTP(w http.ResponseWriter, err error) {
	e, ok := As(err)
	if !ok {
		e = Server("server.internal.unexpected", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)

	wire := Wire{Key: e.Key, Status: e.Status, Info: e.Info}
	if e.Kind == KindServer {
		wire.Info = nil
	}
	_ = json.NewEncoder(w).Encode(wire)
}
