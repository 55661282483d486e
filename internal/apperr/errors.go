// Package apperr defines the sentinel errors shared across ansuz components.
package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrAlreadyExists      = errors.New("already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionUndone      = errors.New("session already undone")
	ErrCollisionExhausted = errors.New("collision suffixes exhausted")
	ErrAnalyzerDisabled   = errors.New("analyzer not configured")
)
