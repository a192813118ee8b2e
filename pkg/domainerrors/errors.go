// Package domainerrors defines the typed, user-safe errors that services
// return and the HTTP layer translates. For infrastructure facts (record
// missing from a store, unique constraint hit) use pkg/platform/sentinel;
// services convert those into these codes at the boundary.
package domainerrors

import "net/http"

// Code identifies a category of domain failure.
type Code string

const (
	CodeBadRequest      Code = "bad_request"
	CodeUnauthorized    Code = "unauthorized"
	CodeNotFound        Code = "not_found"
	CodeInvalidState    Code = "invalid_state"
	CodeAlreadyVoted    Code = "already_voted"
	CodeConflict        Code = "conflict"
	CodeTooManyRequests Code = "too_many_requests"
	CodeInternal        Code = "internal"
)

// Error carries a code plus a message that is safe to show to clients.
// Messages must never echo voter keys or other secrets.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds a domain error with a client-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Is reports whether err is a domain error with the given code.
func Is(err error, code Code) bool {
	de, ok := err.(*Error)
	return ok && de.Code == code
}

// ToHTTPStatus maps a domain code onto its HTTP status. AlreadyVoted and
// InvalidState are both 400s so clients can still distinguish them by code.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidState, CodeAlreadyVoted:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
