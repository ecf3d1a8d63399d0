package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrInvalidRecipient marks a syntactically invalid destination address.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrBlacklisted marks a recipient that delivery is permanently refused to.
	ErrBlacklisted = errors.New("blacklisted")
	// ErrConfiguration marks missing transport credentials or endpoints. Never retried.
	ErrConfiguration = errors.New("configuration error")
)
