package domain

import "errors"

var (
	// ErrSymbolNotFound: the exchange does not list the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrQuoteUnavailable: the symbol exists but no quote could be obtained.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrPermissionDenied is returned by the broker for calls the account or
	// app subscription is not allowed to make.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidInput covers broker-side validation rejections.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBrokerUnavailable covers network errors and broker 5xx responses.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrTokenExpired means the access token is no longer valid.
	ErrTokenExpired = errors.New("session token expired")
	// ErrMissingColumn is a structural watch-list error.
	ErrMissingColumn = errors.New("missing required column")
	// ErrNoBroker is returned when a live operation has no broker attached.
	ErrNoBroker = errors.New("no broker connection")
)
