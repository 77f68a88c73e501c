package callsession

import (
	"context"
	"log/slog"

	"github.com/addiegupta/xcall/internal/store"
)

// ClaimResult is the outcome of a pickup-race claim attempt.
type ClaimResult int

const (
	// Claimed means this endpoint won the race and may answer the call.
	Claimed ClaimResult = iota
	// LostRace means another endpoint already took the call (or the claim
	// could not be read); this endpoint must not proceed. A normal
	// outcome, not an error.
	LostRace
)

func (r ClaimResult) String() string {
	if r == Claimed {
		return "claimed"
	}
	return "lost_race"
}

// PickupRaceResolver arbitrates which endpoint services an inbound call
// request. The claim is a best-effort read-then-write over an eventually
// consistent store, not a lock: two claimants may both observe the pending
// flag before either write lands. That window is accepted.
type PickupRaceResolver struct {
	st     store.Store
	logger *slog.Logger
}

// NewPickupRaceResolver creates a resolver over the session store.
func NewPickupRaceResolver(st store.Store, logger *slog.Logger) *PickupRaceResolver {
	return &PickupRaceResolver{
		st:     st,
		logger: logger.With("subsystem", "pickup"),
	}
}

// TryClaim reads the callRequestPending flag for callerID and, if it is
// still pending, flips it to taken and returns Claimed. Any other observed
// value, a missing record, or a read/write failure returns LostRace.
func (r *PickupRaceResolver) TryClaim(ctx context.Context, callerID string) ClaimResult {
	value, err := r.st.CallRequest(ctx, callerID)
	if err != nil {
		r.logger.Warn("claim read failed, treating as lost race", "caller_id", callerID, "error", err)
		return LostRace
	}
	if value != store.CallRequestPending {
		r.logger.Debug("call request no longer pending", "caller_id", callerID, "value", value)
		return LostRace
	}

	if err := r.st.SetCallRequest(ctx, callerID, store.CallRequestTaken); err != nil {
		// The claim write did not land; another endpoint may still take
		// the call, so this one backs off.
		r.logger.Warn("claim write failed, treating as lost race", "caller_id", callerID, "error", err)
		return LostRace
	}

	r.logger.Info("inbound call claimed", "caller_id", callerID)
	return Claimed
}

// Release puts a claimed request back to pending so another endpoint can
// take it, used when this endpoint won the claim but cannot service the
// call. Best effort: a failed write leaves the request taken.
func (r *PickupRaceResolver) Release(ctx context.Context, callerID string) {
	if err := r.st.SetCallRequest(ctx, callerID, store.CallRequestPending); err != nil {
		r.logger.Warn("failed to release claimed call request", "caller_id", callerID, "error", err)
	}
}
