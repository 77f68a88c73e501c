package callsession

import "github.com/addiegupta/xcall/internal/provider"

// State is the position of a call session in its lifecycle.
//
// Outbound path: Idle → Originating → Connecting → Established → Ended.
// Inbound (claimed) path: Idle → Answering → Connecting → Established → Ended.
// Ended is terminal; a new session starts over from Idle.
type State int

const (
	StateIdle State = iota
	StateOriginating
	StateAnswering
	StateConnecting
	StateEstablished
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOriginating:
		return "originating"
	case StateAnswering:
		return "answering"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Active reports whether the state describes a session that is still in
// flight, which blocks creating another one.
func (s State) Active() bool {
	switch s {
	case StateOriginating, StateAnswering, StateConnecting, StateEstablished:
		return true
	default:
		return false
	}
}

// mirrorProviderState maps a provider-reported call state onto the session
// state machine. Initiating mirrors to Connecting, matching what the user
// sees while signaling is still in flight.
func mirrorProviderState(ps provider.CallState) State {
	switch ps {
	case provider.StateInitiating, provider.StateProgressing:
		return StateConnecting
	case provider.StateEstablished:
		return StateEstablished
	case provider.StateEnded:
		return StateEnded
	default:
		return StateConnecting
	}
}
