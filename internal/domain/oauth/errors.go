package oauth

import "errors"

var (
	// ErrInvalidState indicates the OAuth state is unknown, expired or already used.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrStateMismatch indicates the state was issued for another provider.
	ErrStateMismatch = errors.New("oauth: state issued for another provider")
)
