package provider

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Loopback is an in-process Client used when no vendor SDK is linked in:
// every originated call rings briefly, establishes, and reports elapsed
// duration from the wall clock. It gives the daemon a full call lifecycle
// for development without any signaling backend.
type Loopback struct {
	logger *slog.Logger

	// RingDelay is how long a call progresses before establishing.
	RingDelay time.Duration

	mu       sync.Mutex
	identity string
	started  bool
	calls    map[string]*loopbackCall
}

// NewLoopback creates a loopback provider client.
func NewLoopback(logger *slog.Logger) *Loopback {
	return &Loopback{
		logger:    logger.With("subsystem", "provider"),
		RingDelay: 2 * time.Second,
		calls:     make(map[string]*loopbackCall),
	}
}

func (p *Loopback) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Loopback) StartClient(identity string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = identity
	p.started = true
	p.logger.Info("loopback provider started", "identity", identity)
	return nil
}

func (p *Loopback) CallUser(calleeID string) (Call, error) {
	call := &loopbackCall{
		id:      uuid.NewString(),
		remote:  calleeID,
		state:   StateInitiating,
		details: &loopbackDetails{},
	}

	p.mu.Lock()
	p.calls[call.id] = call
	p.mu.Unlock()

	go p.ring(call)

	p.logger.Debug("loopback call created", "call_id", call.id, "callee", calleeID)
	return call, nil
}

func (p *Loopback) GetCall(callID string) Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[callID]
	if !ok {
		return nil
	}
	return call
}

// SimulateInbound creates a ready-to-answer call object as the provider's
// inbound pipeline would, returning its call id.
func (p *Loopback) SimulateInbound(callerID string) string {
	call := &loopbackCall{
		id:      uuid.NewString(),
		remote:  callerID,
		state:   StateProgressing,
		inbound: true,
		details: &loopbackDetails{},
	}

	p.mu.Lock()
	p.calls[call.id] = call
	p.mu.Unlock()
	return call.id
}

// ring walks an outbound call through progressing and established.
func (p *Loopback) ring(call *loopbackCall) {
	call.transition(StateProgressing)
	if l := call.listener(); l != nil {
		l.OnCallProgressing(call)
	}

	time.Sleep(p.RingDelay)

	if call.currentState() == StateEnded {
		return
	}
	call.establish()
	if l := call.listener(); l != nil {
		l.OnCallEstablished(call)
	}
}

type loopbackCall struct {
	id      string
	remote  string
	inbound bool

	mu       sync.Mutex
	state    CallState
	l        Listener
	details  *loopbackDetails
	answered bool
}

type loopbackDetails struct {
	mu          sync.Mutex
	established time.Time
	ended       time.Time
	cause       EndCause
}

func (d *loopbackDetails) Duration() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.established.IsZero() {
		return 0
	}
	end := d.ended
	if end.IsZero() {
		end = time.Now()
	}
	return int(end.Sub(d.established) / time.Second)
}

func (d *loopbackDetails) EndCause() EndCause {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cause
}

func (c *loopbackCall) ID() string           { return c.id }
func (c *loopbackCall) RemoteUserID() string { return c.remote }
func (c *loopbackCall) Details() Details     { return c.details }

func (c *loopbackCall) State() CallState {
	return c.currentState()
}

func (c *loopbackCall) currentState() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *loopbackCall) transition(s CallState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEnded {
		c.state = s
	}
}

func (c *loopbackCall) establish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded {
		return
	}
	c.state = StateEstablished
	c.details.mu.Lock()
	c.details.established = time.Now()
	c.details.mu.Unlock()
}

func (c *loopbackCall) listener() Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.l
}

func (c *loopbackCall) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.l = l
}

func (c *loopbackCall) Answer() error {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return ErrCallOver
	}
	c.answered = true
	c.state = StateEstablished
	c.details.mu.Lock()
	c.details.established = time.Now()
	c.details.mu.Unlock()
	l := c.l
	c.mu.Unlock()

	if l != nil {
		go l.OnCallEstablished(c)
	}
	return nil
}

func (c *loopbackCall) Hangup() error {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return nil
	}
	c.state = StateEnded
	c.details.mu.Lock()
	c.details.ended = time.Now()
	c.details.cause = CauseLocalHangup
	c.details.mu.Unlock()
	l := c.l
	c.mu.Unlock()

	if l != nil {
		go l.OnCallEnded(c)
	}
	return nil
}
