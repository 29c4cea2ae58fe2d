// Package internaltypes holds sentinel errors shared across packages.
package internaltypes

import "errors"

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrNoCredentials = errors.New("no stored credentials for provider")
	ErrNoCard        = errors.New("no stored payment card")
)
