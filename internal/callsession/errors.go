package callsession

import (
	"errors"
	"fmt"
)

// Sentinel errors for state-machine-breaking conditions. Both unwind to
// "abort session, return to idle": no session is created and no resources
// are held.
var (
	// ErrProviderUnavailable means the calling provider returned no call
	// object when originating. Not retryable within the flow.
	ErrProviderUnavailable = errors.New("calling provider returned no call object")

	// ErrCallNotFound means the already-created inbound call object is
	// missing, typically because the call ended before it could be
	// answered or the provider discarded it.
	ErrCallNotFound = errors.New("call not found")

	// ErrSessionActive means a call session is already in flight. Exactly
	// one session may be active per device.
	ErrSessionActive = errors.New("a call session is already active")
)

// PermissionRequiredError is returned by Originate when the calling
// provider reports a missing OS permission. Recoverable: request the named
// permission and retry.
type PermissionRequiredError struct {
	Permission string
}

func (e *PermissionRequiredError) Error() string {
	return fmt.Sprintf("permission %q required to place call", e.Permission)
}
