package callsession

import (
	"time"

	"github.com/google/uuid"
)

// maxCalleeIDLen bounds the callee identity handed to the calling provider
// when originating a callback.
const maxCalleeIDLen = 25

// CallSession identifies one call attempt from originate-or-answer to end.
// Exactly one session is active per device at a time; the controller owns
// the value and hands other components read references only.
type CallSession struct {
	// ID is a locally generated session identifier.
	ID string

	// CallID is assigned by the calling provider once a call object
	// exists.
	CallID string

	// OriginalCallerID is the identity of the party who initiated the
	// request.
	OriginalCallerID string

	// RemoteUserID is resolved once the call object reports it.
	RemoteUserID string

	// StartedAt is the monotonic-clock start timestamp for duration
	// sampling.
	StartedAt time.Time
}

func newSession(originalCallerID string) *CallSession {
	return &CallSession{
		ID:               uuid.NewString(),
		OriginalCallerID: originalCallerID,
		StartedAt:        time.Now(),
	}
}

// truncateCalleeID bounds a callee identity to the provider's limit. The
// limit counts characters, so multi-byte identities are never cut mid-rune.
func truncateCalleeID(calleeID string) string {
	runes := []rune(calleeID)
	if len(runes) > maxCalleeIDLen {
		return string(runes[:maxCalleeIDLen])
	}
	return calleeID
}
