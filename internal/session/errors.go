package session

import (
	"errors"

	"github.com/meetloop/callcore/internal/core"
)

// Command-level errors returned to the immediate caller. The UI decides
// whether any of them become user-visible; ErrAlreadyInProgress in particular
// is a safety net behind the UI's own debouncing and is meant to be ignored.
var (
	// Media contract errors, re-exported so callers need only this package.
	ErrPermissionDenied       = core.ErrPermissionDenied
	ErrMediaAcquisitionFailed = core.ErrMediaAcquisitionFailed
	ErrNegotiationFailed      = core.ErrNegotiationFailed

	// ErrAlreadyInProgress: the command conflicts with an in-flight operation
	// on the same resource, or its cooldown has not elapsed.
	ErrAlreadyInProgress = errors.New("operation already in progress")
	// ErrTransportLost: signaling channel disconnected during an active call.
	ErrTransportLost = errors.New("signaling transport lost")
	// ErrInvalidState: the command is not legal in the current state.
	ErrInvalidState = errors.New("invalid session state for command")
	// ErrClosed: the session loop has been shut down.
	ErrClosed = errors.New("session closed")
)
