package audio

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
)

type fakeOutput struct {
	mu           sync.Mutex
	speaker      bool
	muted        bool
	defaultCalls int
	focusCount   int
	abandonCount int
	focusErr     error
	onLoss       func(transient bool)
}

func (o *fakeOutput) SetSpeakerphone(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speaker = on
}

func (o *fakeOutput) SetMicrophoneMute(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}

func (o *fakeOutput) UseDefaultStream() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.defaultCalls++
}

func (o *fakeOutput) RequestFocus(onLoss func(transient bool)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.focusErr != nil {
		return o.focusErr
	}
	o.focusCount++
	o.onLoss = onLoss
	return nil
}

func (o *fakeOutput) AbandonFocus() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.abandonCount++
}

func newTestRouteManager(out *fakeOutput) *RouteManager {
	return NewRouteManager(out, slog.New(slog.DiscardHandler))
}

func TestRouteManagerToggles(t *testing.T) {
	out := &fakeOutput{}
	m := newTestRouteManager(out)

	if got := m.ToggleSpeaker(); !got {
		t.Error("first ToggleSpeaker = false, want true")
	}
	if !out.speaker {
		t.Error("device speakerphone not enabled")
	}
	if got := m.ToggleSpeaker(); got {
		t.Error("second ToggleSpeaker = true, want false")
	}

	if got := m.ToggleMute(); !got {
		t.Error("first ToggleMute = false, want true")
	}
	if !out.muted {
		t.Error("device microphone not muted")
	}
	if got := m.ToggleMute(); got {
		t.Error("second ToggleMute = true, want false")
	}
}

func TestRouteManagerResetToDefault(t *testing.T) {
	out := &fakeOutput{}
	m := newTestRouteManager(out)

	m.ToggleSpeaker()
	m.ToggleMute()
	m.ResetToDefault()

	if m.SpeakerOn() {
		t.Error("speaker still on after reset")
	}
	if m.Muted() {
		t.Error("microphone still muted after reset")
	}
	if out.speaker || out.muted {
		t.Error("device state not reset")
	}
}

func TestRouteManagerFocusBracket(t *testing.T) {
	out := &fakeOutput{}
	m := newTestRouteManager(out)

	m.RequestFocus()
	m.RequestFocus()
	if out.focusCount != 1 {
		t.Errorf("focus requests = %d, want 1", out.focusCount)
	}

	m.AbandonFocus()
	m.AbandonFocus()
	if out.abandonCount != 1 {
		t.Errorf("focus abandons = %d, want 1", out.abandonCount)
	}
}

func TestRouteManagerFocusDeniedNotHeld(t *testing.T) {
	out := &fakeOutput{focusErr: errors.New("focus denied")}
	m := newTestRouteManager(out)

	m.RequestFocus()
	m.AbandonFocus()
	if out.abandonCount != 0 {
		t.Errorf("abandoned focus that was never granted, abandons = %d", out.abandonCount)
	}
}

func TestRouteManagerFocusLossFallsBackToDefaultStream(t *testing.T) {
	out := &fakeOutput{}
	m := newTestRouteManager(out)

	m.RequestFocus()
	if out.onLoss == nil {
		t.Fatal("no focus loss callback registered")
	}

	out.onLoss(true)
	out.onLoss(false)
	if out.defaultCalls != 2 {
		t.Errorf("default stream fallbacks = %d, want 2", out.defaultCalls)
	}
}

type countingToneDevice struct {
	starts int
	stops  int
}

func (d *countingToneDevice) StartRingback() { d.starts++ }
func (d *countingToneDevice) StopRingback()  { d.stops++ }

func TestTonePlayerIdempotent(t *testing.T) {
	dev := &countingToneDevice{}
	p := NewTonePlayer(dev, slog.New(slog.DiscardHandler))

	p.StopProgressTone()
	if dev.stops != 0 {
		t.Errorf("stops = %d, want 0", dev.stops)
	}

	p.PlayProgressTone()
	p.PlayProgressTone()
	if dev.starts != 1 {
		t.Errorf("starts = %d, want 1", dev.starts)
	}

	p.StopProgressTone()
	p.StopProgressTone()
	if dev.stops != 1 {
		t.Errorf("stops = %d, want 1", dev.stops)
	}

	p.PlayProgressTone()
	if dev.starts != 2 {
		t.Errorf("starts after restart = %d, want 2", dev.starts)
	}
}
