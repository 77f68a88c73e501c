// Package store provides access to the remote session store: a
// path-addressed key-value tree rooted at users/{identity} that holds each
// user's pickup-claim flag, cumulative call duration and push token. The
// store is eventually consistent; writes are best-effort and reads may lag.
package store

import "context"

// Field names under users/{identity}.
const (
	FieldCallRequest = "call_request"
	FieldDuration    = "duration"
	FieldPushToken   = "fcm_token"
)

// Claim flag values. Peer clients write textual booleans, so the store
// keeps them as strings.
const (
	CallRequestPending = "true"
	CallRequestTaken   = "false"
)

// User is one users/{identity} record.
type User struct {
	ID          string `json:"-"`
	CallRequest string `json:"call_request,omitempty"`
	Duration    int64  `json:"duration"`
	PushToken   string `json:"fcm_token,omitempty"`
}

// Store is the session store consumed by the call session core.
//
// All methods take a context because every call may cross the network.
// Implementations must be safe for concurrent use.
type Store interface {
	// CallRequest reads the pickup-claim flag for userID. A missing user or
	// missing field yields an empty string, not an error.
	CallRequest(ctx context.Context, userID string) (string, error)

	// SetCallRequest writes the pickup-claim flag for userID.
	SetCallRequest(ctx context.Context, userID, value string) error

	// Duration reads the cumulative call duration in seconds for userID.
	// A missing record yields zero.
	Duration(ctx context.Context, userID string) (int64, error)

	// SetDuration overwrites the cumulative duration for userID. Callers
	// are responsible for the additive read-then-write discipline.
	SetDuration(ctx context.Context, userID string, seconds int64) error

	// WatchDuration delivers the duration value for userID whenever it
	// changes, starting with the current value. The channel closes when
	// ctx is cancelled.
	WatchDuration(ctx context.Context, userID string) (<-chan int64, error)

	// Users returns all user records. Used once at startup to seed the
	// local duration cache by matching on the stored push token.
	Users(ctx context.Context) ([]User, error)
}
