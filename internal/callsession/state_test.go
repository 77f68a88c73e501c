package callsession

import (
	"strings"
	"testing"

	"github.com/addiegupta/xcall/internal/provider"
)

func TestStateActive(t *testing.T) {
	active := []State{StateOriginating, StateAnswering, StateConnecting, StateEstablished}
	for _, s := range active {
		if !s.Active() {
			t.Errorf("%v.Active() = false, want true", s)
		}
	}
	for _, s := range []State{StateIdle, StateEnded} {
		if s.Active() {
			t.Errorf("%v.Active() = true, want false", s)
		}
	}
}

func TestMirrorProviderState(t *testing.T) {
	tests := []struct {
		in   provider.CallState
		want State
	}{
		{provider.StateInitiating, StateConnecting},
		{provider.StateProgressing, StateConnecting},
		{provider.StateEstablished, StateEstablished},
		{provider.StateEnded, StateEnded},
	}
	for _, tt := range tests {
		if got := mirrorProviderState(tt.in); got != tt.want {
			t.Errorf("mirrorProviderState(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncateCalleeID(t *testing.T) {
	if got := truncateCalleeID("short"); got != "short" {
		t.Errorf("truncateCalleeID(short) = %q", got)
	}
	long := "abcdefghijklmnopqrstuvwxyz"
	if got := truncateCalleeID(long); got != long[:25] {
		t.Errorf("truncateCalleeID = %q, want %q", got, long[:25])
	}

	// The limit counts characters, not bytes; a multi-byte identity must
	// never be cut mid-rune.
	wide := strings.Repeat("é", 30)
	want := strings.Repeat("é", 25)
	if got := truncateCalleeID(wide); got != want {
		t.Errorf("truncateCalleeID(wide) = %q, want %q", got, want)
	}
}
