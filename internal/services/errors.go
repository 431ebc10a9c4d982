// Package services holds the application logic between the HTTP
// handlers and the repositories. Handlers translate the sentinel
// errors defined here into status codes and the response envelope.
package services

import "errors"

var (
	// ErrInvalidInput covers malformed parameters, wrong file counts and
	// unsupported input types. Reported synchronously; no job is created.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers ids that do not exist, belong to someone else,
	// or have expired. The three cases are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized covers credential failures and inactive accounts.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicate covers unique-constraint collisions such as an email
	// that is already registered.
	ErrDuplicate = errors.New("already exists")
)
