// Package audio mediates call audio: speaker and microphone routing, audio
// focus bracketing, and the ringback tone played while the remote end rings.
// The device audio hardware sits behind the Output interface.
package audio

import (
	"log/slog"
	"sync"
)

// Output is the device audio surface.
type Output interface {
	SetSpeakerphone(on bool)
	SetMicrophoneMute(muted bool)

	// UseDefaultStream routes playback back to the default output stream,
	// used as the fallback when audio focus is lost.
	UseDefaultStream()

	// RequestFocus asks for transient audio focus for the voice-call
	// stream. onLoss fires when focus is lost; transient reports whether
	// the loss is temporary.
	RequestFocus(onLoss func(transient bool)) error

	AbandonFocus()
}

// RouteManager owns the speaker/mute toggles and the audio focus the call
// holds between Established and Ended. Safe for concurrent use.
type RouteManager struct {
	out    Output
	logger *slog.Logger

	mu        sync.Mutex
	speaker   bool
	muted     bool
	focusHeld bool
}

// NewRouteManager creates a route manager over the device output.
func NewRouteManager(out Output, logger *slog.Logger) *RouteManager {
	return &RouteManager{
		out:    out,
		logger: logger.With("subsystem", "audio"),
	}
}

// ToggleSpeaker flips speakerphone routing and returns the new state.
func (m *RouteManager) ToggleSpeaker() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaker = !m.speaker
	m.out.SetSpeakerphone(m.speaker)
	m.logger.Debug("speakerphone toggled", "on", m.speaker)
	return m.speaker
}

// ToggleMute flips microphone muting and returns the new state.
func (m *RouteManager) ToggleMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = !m.muted
	m.out.SetMicrophoneMute(m.muted)
	m.logger.Debug("microphone toggled", "muted", m.muted)
	return m.muted
}

// SpeakerOn reports the current speakerphone state.
func (m *RouteManager) SpeakerOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaker
}

// Muted reports the current microphone mute state.
func (m *RouteManager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// ResetToDefault forces speaker off and microphone unmuted regardless of
// prior toggles. Invoked when a call is established.
func (m *RouteManager) ResetToDefault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaker = false
	m.muted = false
	m.out.SetSpeakerphone(false)
	m.out.SetMicrophoneMute(false)
}

// RequestFocus acquires audio focus for the call. On focus loss, transient
// or permanent, playback falls back to the default output stream.
func (m *RouteManager) RequestFocus() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.focusHeld {
		return
	}
	if err := m.out.RequestFocus(m.onFocusLoss); err != nil {
		m.logger.Warn("audio focus request failed", "error", err)
		return
	}
	m.focusHeld = true
}

// AbandonFocus releases audio focus so interrupted apps can reclaim it.
// Idempotent.
func (m *RouteManager) AbandonFocus() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.focusHeld {
		return
	}
	m.out.AbandonFocus()
	m.focusHeld = false
}

func (m *RouteManager) onFocusLoss(transient bool) {
	m.logger.Debug("audio focus lost", "transient", transient)
	m.out.UseDefaultStream()
}
