package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/addiegupta/xcall/internal/audio"
	"github.com/addiegupta/xcall/internal/callsession"
	"github.com/addiegupta/xcall/internal/duration"
	"github.com/addiegupta/xcall/internal/metrics"
	"github.com/addiegupta/xcall/internal/prefs"
	"github.com/addiegupta/xcall/internal/provider"
	"github.com/addiegupta/xcall/internal/proximity"
	"github.com/addiegupta/xcall/internal/store"
)

type nopOutput struct{}

func (nopOutput) SetSpeakerphone(bool)                      {}
func (nopOutput) SetMicrophoneMute(bool)                    {}
func (nopOutput) UseDefaultStream()                         {}
func (nopOutput) RequestFocus(func(transient bool)) error   { return nil }
func (nopOutput) AbandonFocus()                             {}

type nopToneDevice struct{}

func (nopToneDevice) StartRingback() {}
func (nopToneDevice) StopRingback()  {}

type nopSensor struct{}

func (nopSensor) Exists() bool                                      { return false }
func (nopSensor) Subscribe(func(distance, maxRange float64)) error  { return nil }
func (nopSensor) Unsubscribe()                                      {}

type nopWakeLock struct{ held bool }

func (l *nopWakeLock) Acquire()     { l.held = true }
func (l *nopWakeLock) Release()     { l.held = false }
func (l *nopWakeLock) IsHeld() bool { return l.held }

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type apiRig struct {
	srv      *Server
	st       *store.MemoryStore
	loopback *provider.Loopback
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	st := store.NewMemoryStore()
	tracker := duration.NewTracker(st, "device-token", nil, logger)
	routes := audio.NewRouteManager(nopOutput{}, logger)

	loopback := provider.NewLoopback(logger)
	// Calls stay ringing for the whole test so state is predictable.
	loopback.RingDelay = time.Minute

	ctrl, err := callsession.NewController(callsession.Config{
		Identity: "device-token",
		Provider: loopback,
		Store:    st,
		Tracker:  tracker,
		Guard:    proximity.NewGuard(nopSensor{}, &nopWakeLock{}, logger),
		Audio:    routes,
		Player:   audio.NewTonePlayer(nopToneDevice{}, logger),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	pf, err := prefs.Open(t.TempDir())
	if err != nil {
		t.Fatalf("prefs.Open: %v", err)
	}
	t.Cleanup(func() { pf.Close() })

	srv := NewServer(ctrl, tracker, routes, pf, testSecret, metrics.NewCollector(ctrl, tracker, time.Now()))
	t.Cleanup(srv.Close)

	return &apiRig{srv: srv, st: st, loopback: loopback}
}

type testEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (r *apiRig) do(t *testing.T, method, path, token string, body any) (int, testEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	r.srv.ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func (r *apiRig) pair(t *testing.T, secret string) string {
	t.Helper()

	code, env := r.do(t, http.MethodPost, "/api/v1/pair", "", map[string]string{"secret": secret})
	if code != http.StatusOK {
		t.Fatalf("pair status = %d, error %q", code, env.Error)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding pair response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("pair returned empty token")
	}
	return resp.Token
}

func TestHealthIsOpen(t *testing.T) {
	r := newAPIRig(t)
	code, _ := r.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if code != http.StatusOK {
		t.Errorf("health status = %d, want 200", code)
	}
}

func TestPairingFlow(t *testing.T) {
	r := newAPIRig(t)

	// First pairing establishes the secret.
	r.pair(t, "open sesame")

	// The wrong secret is rejected afterwards.
	code, env := r.do(t, http.MethodPost, "/api/v1/pair", "", map[string]string{"secret": "wrong"})
	if code != http.StatusUnauthorized {
		t.Errorf("pair with wrong secret status = %d, want 401 (error %q)", code, env.Error)
	}

	// The original secret keeps working.
	r.pair(t, "open sesame")
}

func TestPairRequiresSecret(t *testing.T) {
	r := newAPIRig(t)
	code, _ := r.do(t, http.MethodPost, "/api/v1/pair", "", map[string]string{})
	if code != http.StatusBadRequest {
		t.Errorf("pair without secret status = %d, want 400", code)
	}
}

func TestAuthRequired(t *testing.T) {
	r := newAPIRig(t)

	code, _ := r.do(t, http.MethodGet, "/api/v1/calls/active", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", code)
	}

	code, _ = r.do(t, http.MethodGet, "/api/v1/calls/active", "not-a-jwt", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("bogus token status = %d, want 401", code)
	}
}

func TestActiveCallWhenIdle(t *testing.T) {
	r := newAPIRig(t)
	token := r.pair(t, "s3cret")

	code, env := r.do(t, http.MethodGet, "/api/v1/calls/active", token, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var call callStatusBody
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decoding call body: %v", err)
	}
	if call.State != "idle" {
		t.Errorf("state = %q, want idle", call.State)
	}
	if call.Duration != "00:00" {
		t.Errorf("duration = %q, want 00:00", call.Duration)
	}
}

func TestPlaceCallAndHangup(t *testing.T) {
	r := newAPIRig(t)
	token := r.pair(t, "s3cret")

	code, env := r.do(t, http.MethodPost, "/api/v1/calls", token, map[string]string{"callee_id": "alice"})
	if code != http.StatusCreated {
		t.Fatalf("place call status = %d, error %q", code, env.Error)
	}
	var call callStatusBody
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decoding call body: %v", err)
	}
	if call.State != "connecting" {
		t.Errorf("state = %q, want connecting", call.State)
	}
	if call.CallerID != "alice" {
		t.Errorf("caller id = %q, want alice", call.CallerID)
	}
	if call.CallID == "" {
		t.Error("call id empty")
	}

	// A second call while one is active is refused.
	code, _ = r.do(t, http.MethodPost, "/api/v1/calls", token, map[string]string{"callee_id": "bob"})
	if code != http.StatusConflict {
		t.Errorf("second place call status = %d, want 409", code)
	}

	code, env = r.do(t, http.MethodPost, "/api/v1/calls/active/hangup", token, nil)
	if code != http.StatusOK {
		t.Fatalf("hangup status = %d", code)
	}
	if err := json.Unmarshal(env.Data, &call); err != nil {
		t.Fatalf("decoding call body: %v", err)
	}
	if call.State != "ended" {
		t.Errorf("state after hangup = %q, want ended", call.State)
	}
}

func TestPlaceCallValidation(t *testing.T) {
	r := newAPIRig(t)
	token := r.pair(t, "s3cret")

	code, _ := r.do(t, http.MethodPost, "/api/v1/calls", token, map[string]string{})
	if code != http.StatusBadRequest {
		t.Errorf("missing callee_id status = %d, want 400", code)
	}

	code, _ = r.do(t, http.MethodPost, "/api/v1/calls", token, map[string]string{"unexpected": "field"})
	if code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", code)
	}
}

func TestInboundOutcomes(t *testing.T) {
	r := newAPIRig(t)
	token := r.pair(t, "s3cret")

	// No pending request for this caller: the race is lost.
	code, env := r.do(t, http.MethodPost, "/api/v1/notifications/inbound", token, map[string]string{"caller_id": "caller-7"})
	if code != http.StatusOK {
		t.Fatalf("inbound status = %d, error %q", code, env.Error)
	}
	var resp struct {
		Outcome string         `json:"outcome"`
		Call    callStatusBody `json:"call"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding inbound response: %v", err)
	}
	if resp.Outcome != "lost_race" {
		t.Errorf("outcome = %q, want lost_race", resp.Outcome)
	}
	if resp.Call.State != "idle" {
		t.Errorf("state = %q, want idle", resp.Call.State)
	}

	// A pending request is claimed and the callback placed.
	r.st.Seed(store.User{ID: "caller-7", CallRequest: store.CallRequestPending})
	code, env = r.do(t, http.MethodPost, "/api/v1/notifications/inbound", token, map[string]string{"caller_id": "caller-7"})
	if code != http.StatusOK {
		t.Fatalf("inbound status = %d, error %q", code, env.Error)
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding inbound response: %v", err)
	}
	if resp.Outcome != "proceeding" {
		t.Errorf("outcome = %q, want proceeding", resp.Outcome)
	}
	if resp.Call.CallerID != "caller-7" {
		t.Errorf("caller id = %q, want caller-7", resp.Call.CallerID)
	}
}

func TestInboundWithCallID(t *testing.T) {
	r := newAPIRig(t)
	token := r.pair(t, "s3cret")

	callID := r.loopback.SimulateInbound("caller-7")
	code, env := r.do(t, http.MethodPost, "/api/v1/notifications/inbound", token, map[string]string{"call_id": callID})
	if code != http.StatusOK {
		t.Fatalf("inbound status = %d, error %q", code, env.Error)
	}
	var resp struct {
		Outcome string         `json:"outcome"`
		Call    callStatusBody `json:"call"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding inbound response: %v", err)
	}
	if resp.Outcome != "proceeding" {
		t.Errorf("outcome = %q, want proceeding", resp.Outcome)
	}
	if resp.Call.State != "established" {
		t.Errorf("state = %q, want established", resp.Call.State)
	}

	// An unknown call id means the call is already gone.
	code, _ = r.do(t, http.MethodPost, "/api/v1/notifications/inbound", token, map[string]string{"call_id": "gone"})
	if code != http.StatusNotFound {
		t.Errorf("unknown call id status = %d, want 404", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newAPIRig(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{"xcall_session_active", "xcall_sessions_started_total", "xcall_uptime_seconds"} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestAudioToggles(t *testing.T) {
	r := newAPIRig(t)
	token := r.pair(t, "s3cret")

	code, env := r.do(t, http.MethodPost, "/api/v1/calls/active/speaker", token, nil)
	if code != http.StatusOK {
		t.Fatalf("speaker toggle status = %d", code)
	}
	var speaker struct {
		SpeakerOn bool `json:"speaker_on"`
	}
	if err := json.Unmarshal(env.Data, &speaker); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !speaker.SpeakerOn {
		t.Error("speaker_on = false after first toggle")
	}

	code, env = r.do(t, http.MethodPost, "/api/v1/calls/active/mute", token, nil)
	if code != http.StatusOK {
		t.Fatalf("mute toggle status = %d", code)
	}
	var mute struct {
		Muted bool `json:"muted"`
	}
	if err := json.Unmarshal(env.Data, &mute); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !mute.Muted {
		t.Error("muted = false after first toggle")
	}
}
