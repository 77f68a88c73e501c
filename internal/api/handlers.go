package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/addiegupta/xcall/internal/api/middleware"
	"github.com/addiegupta/xcall/internal/callsession"
	"github.com/addiegupta/xcall/internal/prefs"
	"github.com/google/uuid"
)

// maxBodySize bounds control API request bodies.
const maxBodySize = 16 * 1024

type pairRequest struct {
	Secret string `json:"secret"`
}

type pairResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handlePair exchanges the device pairing secret for a bearer token. The
// first pairing request stores the secret's hash; subsequent requests must
// present the same secret.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, "secret is required")
		return
	}

	stored, err := s.prefs.Get(prefs.KeyPairingHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "pairing state unavailable")
		return
	}

	if stored == "" {
		hash, err := HashPairingSecret(req.Secret)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "pairing failed")
			return
		}
		if err := s.prefs.Set(prefs.KeyPairingHash, hash); err != nil {
			writeError(w, http.StatusInternalServerError, "pairing failed")
			return
		}
		slog.Info("control client paired for the first time")
	} else {
		ok, err := CheckPairingSecret(req.Secret, stored)
		if err != nil || !ok {
			writeError(w, http.StatusUnauthorized, "invalid pairing secret")
			return
		}
	}

	token, expiresAt, err := middleware.GenerateToken(s.secret, uuid.NewString())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, pairResponse{Token: token, ExpiresAt: expiresAt})
}

type placeCallRequest struct {
	CalleeID string `json:"callee_id"`
}

func (s *Server) handlePlaceCall(w http.ResponseWriter, r *http.Request) {
	var req placeCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CalleeID == "" {
		writeError(w, http.StatusBadRequest, "callee_id is required")
		return
	}

	if err := s.ctrl.Originate(req.CalleeID); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.activeCall())
}

type inboundRequest struct {
	CallerID string `json:"caller_id,omitempty"`
	CallID   string `json:"call_id,omitempty"`
}

type inboundResponse struct {
	Outcome string         `json:"outcome"`
	Call    callStatusBody `json:"call"`
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := s.ctrl.HandleInboundNotification(r.Context(), callsession.LaunchParams{
		CallerID: req.CallerID,
		CallID:   req.CallID,
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inboundResponse{
		Outcome: outcome.String(),
		Call:    s.activeCall(),
	})
}

// callStatusBody describes the active session for API consumers.
type callStatusBody struct {
	State        string `json:"state"`
	SessionID    string `json:"session_id,omitempty"`
	CallID       string `json:"call_id,omitempty"`
	CallerID     string `json:"caller_id,omitempty"`
	RemoteUserID string `json:"remote_user_id,omitempty"`
	Duration     string `json:"duration"`
	SpeakerOn    bool   `json:"speaker_on"`
	Muted        bool   `json:"muted"`
}

func (s *Server) activeCall() callStatusBody {
	snap := s.ctrl.Snapshot()
	return callStatusBody{
		State:        snap.State.String(),
		SessionID:    snap.SessionID,
		CallID:       snap.CallID,
		CallerID:     snap.OriginalCallerID,
		RemoteUserID: snap.RemoteUserID,
		Duration:     s.tracker.Current(),
		SpeakerOn:    s.audio.SpeakerOn(),
		Muted:        s.audio.Muted(),
	}
}

func (s *Server) handleActiveCall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.activeCall())
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	s.ctrl.EndCall()
	writeJSON(w, http.StatusOK, s.activeCall())
}

func (s *Server) handleToggleSpeaker(w http.ResponseWriter, r *http.Request) {
	on := s.audio.ToggleSpeaker()
	writeJSON(w, http.StatusOK, map[string]bool{"speaker_on": on})
}

func (s *Server) handleToggleMute(w http.ResponseWriter, r *http.Request) {
	muted := s.audio.ToggleMute()
	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

// writeSessionError maps call-session errors onto HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	var perm *callsession.PermissionRequiredError
	switch {
	case errors.As(err, &perm):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"reason":     "permission_required",
			"permission": perm.Permission,
		})
	case errors.Is(err, callsession.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, callsession.ErrCallNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, callsession.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
