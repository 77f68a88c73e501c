// Package provider defines the abstraction over the external calling
// provider SDK that performs signaling and media transport. The daemon only
// consumes call objects and listener callbacks; the provider's wire protocol
// is not modelled here.
package provider

import (
	"errors"
	"fmt"
)

// CallState is the provider-reported state of a call object.
type CallState int

const (
	StateInitiating CallState = iota // call created, signaling in flight
	StateProgressing                 // remote end is ringing
	StateEstablished                 // media flowing both ways
	StateEnded                       // call finished, details frozen
)

func (s CallState) String() string {
	switch s {
	case StateInitiating:
		return "initiating"
	case StateProgressing:
		return "progressing"
	case StateEstablished:
		return "established"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EndCause describes why a call ended.
type EndCause int

const (
	CauseNone EndCause = iota
	CauseLocalHangup
	CauseRemoteHangup
	CauseDenied
	CauseNoAnswer
	CauseTimeout
	CauseFailure
)

func (c EndCause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseLocalHangup:
		return "local_hangup"
	case CauseRemoteHangup:
		return "remote_hangup"
	case CauseDenied:
		return "denied"
	case CauseNoAnswer:
		return "no_answer"
	case CauseTimeout:
		return "timeout"
	case CauseFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// PushPair is an opaque device/payload pair the provider hands back when it
// wants the application to deliver a wake-up push for an incoming call.
type PushPair struct {
	PushData    []byte
	PushPayload []byte
}

// Details exposes the frozen metadata of a call: its running duration in
// seconds while active, and the end cause once the call has ended.
type Details interface {
	Duration() int
	EndCause() EndCause
}

// Listener receives call lifecycle callbacks from the provider. Callbacks
// arrive on provider-owned goroutines.
type Listener interface {
	OnCallProgressing(call Call)
	OnCallEstablished(call Call)
	OnCallEnded(call Call)
	OnShouldSendPushNotification(call Call, pairs []PushPair)
}

// Call is one call object owned by the provider.
type Call interface {
	ID() string
	RemoteUserID() string
	State() CallState
	Details() Details
	Answer() error
	Hangup() error

	// AddListener registers a listener for this call's lifecycle events.
	// The controller attaches at most one listener per call object.
	AddListener(l Listener)
}

// Client is the provider's client handle for this device identity.
type Client interface {
	// Started reports whether the client has been started for an identity.
	Started() bool

	// StartClient registers this device with the provider under identity.
	StartClient(identity string) error

	// CallUser originates a call to calleeID. It returns
	// *MissingPermissionError if the OS denied a required permission, and
	// (nil, nil) when the provider could not produce a call object.
	CallUser(calleeID string) (Call, error)

	// GetCall looks up an existing call object created by the provider's
	// inbound pipeline. It returns nil if the call is unknown or already
	// discarded.
	GetCall(callID string) Call
}

// ErrCallOver is returned when answering a call that has already ended.
var ErrCallOver = errors.New("provider: call already ended")

// MissingPermissionError is returned by CallUser when the OS permission the
// provider needs has not been granted. The caller should request the named
// permission and retry.
type MissingPermissionError struct {
	Permission string
}

func (e *MissingPermissionError) Error() string {
	return fmt.Sprintf("provider: missing permission %q", e.Permission)
}

// AsMissingPermission unwraps err into a MissingPermissionError if possible.
func AsMissingPermission(err error) (*MissingPermissionError, bool) {
	var mp *MissingPermissionError
	if errors.As(err, &mp) {
		return mp, true
	}
	return nil, false
}
