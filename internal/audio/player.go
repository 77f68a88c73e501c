package audio

import (
	"log/slog"
	"sync"
)

// Player plays the ringback tone heard while the remote end is ringing.
type Player interface {
	PlayProgressTone()
	StopProgressTone()
}

// ToneDevice starts and stops the device ringback tone loop.
type ToneDevice interface {
	StartRingback()
	StopRingback()
}

// TonePlayer adapts a ToneDevice into an idempotent Player: playing while
// already playing and stopping while already stopped are no-ops, so the
// controller can stop the tone on every exit path without bookkeeping.
type TonePlayer struct {
	dev    ToneDevice
	logger *slog.Logger

	mu      sync.Mutex
	playing bool
}

// NewTonePlayer creates a tone player over the device ringback loop.
func NewTonePlayer(dev ToneDevice, logger *slog.Logger) *TonePlayer {
	return &TonePlayer{
		dev:    dev,
		logger: logger.With("subsystem", "audio"),
	}
}

// PlayProgressTone starts the ringback tone if it is not already playing.
func (p *TonePlayer) PlayProgressTone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.dev.StartRingback()
	p.playing = true
	p.logger.Debug("ringback tone started")
}

// StopProgressTone stops the ringback tone if it is playing.
func (p *TonePlayer) StopProgressTone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.dev.StopRingback()
	p.playing = false
	p.logger.Debug("ringback tone stopped")
}
