// Package callsession implements the call-session core: the lifecycle state
// machine for a single live call on this device, the pickup-race resolver
// that arbitrates which endpoint answers an inbound request, and the
// orchestration of duration tracking, audio routing and the proximity
// guard around a session.
package callsession

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/addiegupta/xcall/internal/audio"
	"github.com/addiegupta/xcall/internal/duration"
	"github.com/addiegupta/xcall/internal/provider"
	"github.com/addiegupta/xcall/internal/proximity"
	"github.com/addiegupta/xcall/internal/store"
)

// Notifier clears local notification banners once a call is established.
type Notifier interface {
	ClearAll()
}

// EndedEvent is the completion signal produced when a session ends, for the
// downstream feedback-collection collaborator.
type EndedEvent struct {
	SessionID        string
	CallID           string
	OriginalCallerID string
	DurationSeconds  int
	EndCause         provider.EndCause
}

// FeedbackPublisher consumes session-ended events. Implementations must not
// block; delivery is typically handed off to a background goroutine.
type FeedbackPublisher interface {
	PublishSessionEnded(ev EndedEvent)
}

// PushForwarder forwards the provider's push-notification requests to the
// external push-delivery collaborator.
type PushForwarder interface {
	ForwardCallPush(callID, callerID string, pairs []provider.PushPair)
}

// LaunchParams are the inbound launch parameters: a caller identity (call
// still needs claiming) or a call identifier (already claimed upstream).
// Exactly one must be set.
type LaunchParams struct {
	CallerID string
	CallID   string
}

// InboundOutcome is the user-visible result of an inbound notification.
type InboundOutcome int

const (
	// OutcomeProceeding means a session was created and the call flow
	// continues.
	OutcomeProceeding InboundOutcome = iota
	// OutcomeLostRace means another endpoint already answered; no session
	// was created and nothing is held.
	OutcomeLostRace
)

func (o InboundOutcome) String() string {
	if o == OutcomeLostRace {
		return "lost_race"
	}
	return "proceeding"
}

// Config wires a Controller's collaborators. Provider, Store, Tracker,
// Guard, Audio and Player are required; the rest are optional.
type Config struct {
	// Identity is the provider client identity of this device.
	Identity string

	Provider provider.Client
	Store    store.Store
	Tracker  *duration.Tracker
	Guard    *proximity.Guard
	Audio    *audio.RouteManager
	Player   audio.Player

	Notifier Notifier
	Feedback FeedbackPublisher
	Push     PushForwarder
	Logger   *slog.Logger

	// OnStateChange observes every state transition. Called with the
	// controller's lock held; it must not call back into the controller.
	OnStateChange func(State)
}

// Controller is the top-level call-session state machine. It exclusively
// owns the active CallSession value and the provider call handle, and it
// enforces the single-active-session invariant by construction: one mutable
// session slot behind one mutex.
type Controller struct {
	identity string
	provider provider.Client
	resolver *PickupRaceResolver
	tracker  *duration.Tracker
	guard    *proximity.Guard
	audio    *audio.RouteManager
	player   audio.Player
	notifier Notifier
	feedback FeedbackPublisher
	push     PushForwarder
	logger   *slog.Logger

	onStateChange func(State)

	mu      sync.Mutex
	state   State
	session *CallSession
	call    provider.Call
	torn    bool
	started int64
}

// NewController creates a controller in the Idle state.
func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.Provider == nil:
		return nil, fmt.Errorf("callsession: provider is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("callsession: store is required")
	case cfg.Tracker == nil:
		return nil, fmt.Errorf("callsession: tracker is required")
	case cfg.Guard == nil:
		return nil, fmt.Errorf("callsession: proximity guard is required")
	case cfg.Audio == nil:
		return nil, fmt.Errorf("callsession: audio route manager is required")
	case cfg.Player == nil:
		return nil, fmt.Errorf("callsession: audio player is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "callsession")

	return &Controller{
		identity:      cfg.Identity,
		provider:      cfg.Provider,
		resolver:      NewPickupRaceResolver(cfg.Store, logger),
		tracker:       cfg.Tracker,
		guard:         cfg.Guard,
		audio:         cfg.Audio,
		player:        cfg.Player,
		notifier:      cfg.Notifier,
		feedback:      cfg.Feedback,
		push:          cfg.Push,
		logger:        logger,
		onStateChange: cfg.OnStateChange,
		state:         StateIdle,
	}, nil
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionsStarted returns the number of sessions begun since startup.
func (c *Controller) SessionsStarted() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Snapshot is a read-only copy of the controller's session view.
type Snapshot struct {
	State            State
	SessionID        string
	CallID           string
	OriginalCallerID string
	RemoteUserID     string
}

// Snapshot returns the current state and session identifiers.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{State: c.state}
	if c.session != nil {
		snap.SessionID = c.session.ID
		snap.CallID = c.session.CallID
		snap.OriginalCallerID = c.session.OriginalCallerID
		snap.RemoteUserID = c.session.RemoteUserID
	}
	return snap
}

// HandleInboundNotification services an inbound call notification. When the
// launch parameters already carry a call id the request was claimed
// upstream, racing is skipped and the call is answered directly. Otherwise
// the pickup race is resolved first: on a won claim the session enters the
// Answering path and the controller calls the original caller back; on a
// lost race it reports OutcomeLostRace without creating a session or
// holding any resource.
func (c *Controller) HandleInboundNotification(ctx context.Context, params LaunchParams) (InboundOutcome, error) {
	if (params.CallerID == "") == (params.CallID == "") {
		return OutcomeLostRace, fmt.Errorf("launch parameters: exactly one of caller id and call id must be set")
	}

	if params.CallID != "" {
		if err := c.AnswerExisting(params.CallID); err != nil {
			return OutcomeLostRace, err
		}
		return OutcomeProceeding, nil
	}

	// A claim must not be evaluated while a prior session is in flight.
	if c.State().Active() {
		return OutcomeLostRace, ErrSessionActive
	}

	if c.resolver.TryClaim(ctx, params.CallerID) == LostRace {
		return OutcomeLostRace, nil
	}

	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		// A session started between the claim and here. The request was
		// already taken off the shared flag, so hand it back for another
		// endpoint to answer instead of orphaning it.
		c.resolver.Release(ctx, params.CallerID)
		return OutcomeLostRace, ErrSessionActive
	}
	c.setStateLocked(StateAnswering)
	err := c.originateLocked(params.CallerID)
	c.mu.Unlock()

	if err != nil {
		return OutcomeLostRace, err
	}
	return OutcomeProceeding, nil
}

// Originate places a call to calleeID, truncated to the provider's 25
// character limit. On a missing-permission condition it returns
// *PermissionRequiredError and creates no session; the caller should
// request the permission and retry. A provider that yields no call object
// returns ErrProviderUnavailable.
func (c *Controller) Originate(calleeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active() {
		return ErrSessionActive
	}
	return c.originateLocked(calleeID)
}

func (c *Controller) originateLocked(calleeID string) error {
	if err := c.ensureStartedLocked(); err != nil {
		c.setStateLocked(StateIdle)
		return err
	}

	c.setStateLocked(StateOriginating)

	call, err := c.provider.CallUser(truncateCalleeID(calleeID))
	if err != nil {
		c.setStateLocked(StateIdle)
		if mp, ok := provider.AsMissingPermission(err); ok {
			return &PermissionRequiredError{Permission: mp.Permission}
		}
		return fmt.Errorf("placing call: %w", err)
	}
	if call == nil {
		c.setStateLocked(StateIdle)
		return ErrProviderUnavailable
	}

	session := newSession(calleeID)
	session.CallID = call.ID()
	c.beginSessionLocked(session, call)

	c.logger.Info("call originated", "call_id", session.CallID, "callee", truncateCalleeID(calleeID))
	return nil
}

// AnswerExisting answers a call object already created by the provider's
// inbound pipeline. A missing call object returns ErrCallNotFound: the call
// ended before it could be answered, and the flow exits without a session.
func (c *Controller) AnswerExisting(callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active() {
		return ErrSessionActive
	}
	if err := c.ensureStartedLocked(); err != nil {
		return err
	}

	c.setStateLocked(StateAnswering)

	call := c.provider.GetCall(callID)
	if call == nil {
		c.setStateLocked(StateIdle)
		return ErrCallNotFound
	}

	if err := call.Answer(); err != nil {
		c.setStateLocked(StateIdle)
		return fmt.Errorf("answering call %s: %w", callID, err)
	}

	session := newSession("")
	session.CallID = callID
	session.RemoteUserID = call.RemoteUserID()
	c.beginSessionLocked(session, call)

	c.logger.Info("call answered", "call_id", callID, "remote_user", session.RemoteUserID)
	return nil
}

// beginSessionLocked installs the new session, attaches the controller as
// the call's listener exactly once, mirrors the provider state and starts
// the duration tracker and proximity guard.
func (c *Controller) beginSessionLocked(session *CallSession, call provider.Call) {
	c.session = session
	c.call = call
	c.torn = false
	c.started++

	call.AddListener(c)
	c.setStateLocked(mirrorProviderState(call.State()))

	c.tracker.Start(call)
	c.guard.Engage()
}

// ensureStartedLocked starts the provider client for this device identity
// if it has not been started yet.
func (c *Controller) ensureStartedLocked() error {
	if c.provider.Started() {
		return nil
	}
	if err := c.provider.StartClient(c.identity); err != nil {
		return fmt.Errorf("starting provider client: %w", err)
	}
	return nil
}

// EndCall is the user-initiated hangup. Idempotent: with no active call it
// does nothing. The duration sampler is cancelled synchronously before the
// background persistence write is issued, so the final sample reflects the
// true end time.
func (c *Controller) EndCall() {
	c.mu.Lock()
	call := c.call
	if call == nil && !c.state.Active() {
		c.mu.Unlock()
		return
	}

	c.player.StopProgressTone()
	c.audio.AbandonFocus()

	var elapsed int
	if call != nil {
		elapsed = call.Details().Duration()
	}
	c.teardownLocked(provider.CauseLocalHangup, elapsed)
	c.call = nil
	c.mu.Unlock()

	if call != nil {
		if err := call.Hangup(); err != nil {
			c.logger.Warn("provider hangup failed", "error", err)
		}
	}
}

// teardownLocked is the shared exit path for user hangup and the provider's
// Ended event: stop the duration tracker, release the wake guard, mark the
// session Ended and emit the completion event. Safe to invoke more than
// once per session; resources are never double-released.
func (c *Controller) teardownLocked(cause provider.EndCause, elapsedSeconds int) {
	if c.torn || c.session == nil {
		return
	}
	c.torn = true

	c.tracker.Stop()
	c.guard.Disengage()
	c.setStateLocked(StateEnded)

	if c.feedback != nil {
		c.feedback.PublishSessionEnded(EndedEvent{
			SessionID:        c.session.ID,
			CallID:           c.session.CallID,
			OriginalCallerID: c.session.OriginalCallerID,
			DurationSeconds:  elapsedSeconds,
			EndCause:         cause,
		})
	}
}

// OnCallProgressing plays the ringback tone. No state change.
func (c *Controller) OnCallProgressing(call provider.Call) {
	if !c.ownsCall(call) {
		return
	}
	c.logger.Debug("call progressing", "call_id", call.ID())
	c.player.PlayProgressTone()
}

// OnCallEstablished marks the session Established: audio routing is reset
// to its defaults, audio focus is requested, the ringback stops, local
// notification banners are cleared and the duration tracker is restarted.
// The listener is not re-attached; it was attached once when the call
// handle was obtained.
func (c *Controller) OnCallEstablished(call provider.Call) {
	c.mu.Lock()
	if !c.ownsCallLocked(call) {
		c.mu.Unlock()
		return
	}

	c.player.StopProgressTone()
	c.audio.ResetToDefault()
	c.audio.RequestFocus()
	if c.notifier != nil {
		c.notifier.ClearAll()
	}

	c.session.CallID = call.ID()
	if c.session.RemoteUserID == "" {
		c.session.RemoteUserID = call.RemoteUserID()
	}
	c.setStateLocked(StateEstablished)

	// Restart the sampler while still holding the lock: a hangup racing
	// this callback must find either no sampler or a stoppable one, never
	// a restart landing after its teardown.
	c.tracker.Start(call)
	c.mu.Unlock()

	c.logger.Info("call established", "call_id", call.ID())
}

// OnCallEnded runs the shared teardown for a provider-reported end: stop
// ringback, abandon audio focus, release the proximity guard, persist the
// final duration delta and mark the session Ended.
func (c *Controller) OnCallEnded(call provider.Call) {
	c.mu.Lock()
	if !c.ownsCallLocked(call) {
		c.mu.Unlock()
		return
	}

	cause := call.Details().EndCause()
	elapsed := call.Details().Duration()

	c.player.StopProgressTone()
	c.audio.AbandonFocus()
	c.teardownLocked(cause, elapsed)
	c.call = nil
	c.mu.Unlock()

	c.logger.Info("call ended", "call_id", call.ID(), "cause", cause.String(), "duration_seconds", elapsed)
}

// OnShouldSendPushNotification forwards the provider's push request to the
// external push-delivery collaborator.
func (c *Controller) OnShouldSendPushNotification(call provider.Call, pairs []provider.PushPair) {
	if c.push == nil {
		return
	}
	snap := c.Snapshot()
	c.push.ForwardCallPush(call.ID(), snap.OriginalCallerID, pairs)
}

func (c *Controller) ownsCall(call provider.Call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownsCallLocked(call)
}

// ownsCallLocked guards against callbacks from a stale call object after a
// new session has started.
func (c *Controller) ownsCallLocked(call provider.Call) bool {
	return c.call != nil && c.call.ID() == call.ID()
}

func (c *Controller) setStateLocked(s State) {
	if s == c.state {
		return
	}
	old := c.state
	c.state = s
	c.logger.Debug("session state changed", "from", old.String(), "to", s.String())
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}
