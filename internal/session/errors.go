package session

import (
	"errors"
	"fmt"

	"github.com/example/langfocus/internal/database"
	"github.com/example/langfocus/internal/grading"
)

// Sentinel errors for the session package.
// Use errors.Is to check: errors.Is(err, session.ErrNoActiveSession)
var (
	ErrSessionAlreadyActive = errors.New("session already active")
	ErrSessionBusy          = errors.New("session busy")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionExpired       = fmt.Errorf("%w: session expired", ErrNoActiveSession)
	ErrEmptyAnswer          = errors.New("empty answer")
	ErrIllegalTransition    = errors.New("illegal session transition")

	// Failures of collaborators, surfaced unchanged
	ErrGradingUnavailable = grading.ErrGradingUnavailable
	ErrStorageFailure     = database.ErrStorageFailure
)
