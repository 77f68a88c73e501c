package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/addiegupta/xcall/internal/callsession"
	"github.com/addiegupta/xcall/internal/feedback"
	"github.com/addiegupta/xcall/internal/provider"
)

// The adapters below stand in for real device drivers. A device build
// replaces them with implementations backed by the platform's audio,
// sensor and notification services.

// logOutput applies audio routing by logging the requested state.
type logOutput struct {
	logger *slog.Logger
}

func (o *logOutput) SetSpeakerphone(on bool) {
	o.logger.Debug("audio output: speakerphone", "on", on)
}

func (o *logOutput) SetMicrophoneMute(muted bool) {
	o.logger.Debug("audio output: microphone", "muted", muted)
}

func (o *logOutput) UseDefaultStream() {
	o.logger.Debug("audio output: default stream")
}

func (o *logOutput) RequestFocus(onLoss func(transient bool)) error {
	o.logger.Debug("audio output: focus requested")
	return nil
}

func (o *logOutput) AbandonFocus() {
	o.logger.Debug("audio output: focus abandoned")
}

// logToneDevice plays the ringback tone by logging.
type logToneDevice struct {
	logger *slog.Logger
}

func (d *logToneDevice) StartRingback() { d.logger.Debug("ringback: start") }
func (d *logToneDevice) StopRingback()  { d.logger.Debug("ringback: stop") }

// noSensor is the proximity sensor on hardware without one; the guard
// treats it as a silent no-op.
type noSensor struct{}

func (noSensor) Exists() bool                                    { return false }
func (noSensor) Subscribe(func(distance, maxRange float64)) error { return nil }
func (noSensor) Unsubscribe()                                    {}

// memWakeLock tracks held state in memory.
type memWakeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *memWakeLock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
}

func (l *memWakeLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

func (l *memWakeLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// logNotifier clears notification banners by logging.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) ClearAll() {
	n.logger.Debug("notification banners cleared")
}

// feedbackAdapter bridges the controller's completion events to the
// feedback collector client. Delivery is fire-and-forget.
type feedbackAdapter struct {
	client *feedback.Client
	logger *slog.Logger
}

func (a *feedbackAdapter) PublishSessionEnded(ev callsession.EndedEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := a.client.SendSessionEnded(ctx, feedback.SessionEndedRequest{
			SessionID:        ev.SessionID,
			CallID:           ev.CallID,
			OriginalCallerID: ev.OriginalCallerID,
			DurationSeconds:  ev.DurationSeconds,
			EndCause:         ev.EndCause.String(),
		})
		if err != nil {
			a.logger.Warn("feedback event delivery failed", "session_id", ev.SessionID, "error", err)
		}
	}()
}

// pushLogger logs push forwarding requests; actual delivery belongs to the
// external push collaborator.
type pushLogger struct {
	logger *slog.Logger
}

func (p *pushLogger) ForwardCallPush(callID, callerID string, pairs []provider.PushPair) {
	p.logger.Info("push notification requested", "call_id", callID, "caller_id", callerID, "pairs", len(pairs))
}
