// Package duration tracks elapsed call time. While a call is active a
// fixed-cadence sampler reads the provider's call details and publishes a
// formatted MM:SS value; when the call ends, the session's delta is added
// to the user's cumulative duration in the session store with a single
// best-effort write.
package duration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/addiegupta/xcall/internal/provider"
	"github.com/addiegupta/xcall/internal/store"
)

// sampleInterval is the cadence at which the elapsed duration is sampled.
const sampleInterval = 500 * time.Millisecond

// persistTimeout bounds the background write of the final duration.
const persistTimeout = 10 * time.Second

// Display receives formatted duration updates for presentation. Updates
// arrive on the sampler goroutine and must not block.
type Display interface {
	SetCallDuration(formatted string)
}

// Tracker samples elapsed call time and persists cumulative duration.
// Methods are safe for concurrent use.
type Tracker struct {
	st      store.Store
	userID  string
	display Display
	logger  *slog.Logger

	mu          sync.Mutex
	call        provider.Call
	stop        chan struct{}
	done        chan struct{}
	storedTotal int64
	last        string
}

// NewTracker creates a tracker that persists durations for userID, the
// device token the store keys DurationRecords by.
func NewTracker(st store.Store, userID string, display Display, logger *slog.Logger) *Tracker {
	return &Tracker{
		st:      st,
		userID:  userID,
		display: display,
		logger:  logger.With("subsystem", "duration"),
	}
}

// SetStoredTotal updates the cached cumulative duration, normally from the
// store's change subscription. Smaller values are ignored: DurationRecords
// are monotonically non-decreasing.
func (t *Tracker) SetStoredTotal(seconds int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seconds > t.storedTotal {
		t.storedTotal = seconds
	}
}

// StoredTotal returns the cached cumulative duration in seconds.
func (t *Tracker) StoredTotal() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storedTotal
}

// Current returns the most recently published formatted duration, or
// "00:00" before the first sample.
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == "" {
		return FormatTimespan(0)
	}
	return t.last
}

// Start begins sampling call's elapsed duration every 500ms. A tracker that
// is already running is cancelled first so there is never more than one
// sampler; the restart does not persist anything.
func (t *Tracker) Start(call provider.Call) {
	t.cancel()

	t.mu.Lock()
	t.call = call
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	t.mu.Unlock()

	go t.sample(call, stop, done)
}

func (t *Tracker) sample(call provider.Call, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	t.publish(call)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.publish(call)
		}
	}
}

func (t *Tracker) publish(call provider.Call) {
	formatted := FormatTimespan(call.Details().Duration())

	t.mu.Lock()
	t.last = formatted
	display := t.display
	t.mu.Unlock()

	if display != nil {
		display.SetCallDuration(formatted)
	}
}

// cancel stops a running sampler and waits for it to exit. It reports
// whether a sampler was actually running. The wait happens without holding
// t.mu because the sampler's publish path takes the lock.
func (t *Tracker) cancel() bool {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	<-done
	return true
}

// Stop cancels the sampler synchronously, then issues exactly one additive
// update of the user's cumulative duration: storedTotal plus the session's
// final elapsed seconds. The write runs in the background and its failure
// is logged and dropped; losing a duration delta on store failure is an
// accepted limitation.
//
// Stop is a no-op when the tracker is not running, so repeated teardown
// never writes twice.
func (t *Tracker) Stop() {
	if !t.cancel() {
		return
	}

	t.mu.Lock()
	call := t.call
	t.call = nil
	if call == nil {
		t.mu.Unlock()
		return
	}
	delta := int64(call.Details().Duration())
	newTotal := t.storedTotal + delta
	t.storedTotal = newTotal
	t.mu.Unlock()

	go t.persist(newTotal, delta)
}

func (t *Tracker) persist(newTotal, delta int64) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := t.st.SetDuration(ctx, t.userID, newTotal); err != nil {
		t.logger.Warn("failed to persist call duration",
			"user_id", t.userID,
			"delta_seconds", delta,
			"total_seconds", newTotal,
			"error", err,
		)
		return
	}
	t.logger.Debug("call duration persisted", "delta_seconds", delta, "total_seconds", newTotal)
}

// SeedStoredTotal reads every user record from the store and returns the
// cumulative duration of the record keyed by pushToken. Used once at
// startup to warm the local cache.
func SeedStoredTotal(ctx context.Context, st store.Store, pushToken string) (int64, error) {
	users, err := st.Users(ctx)
	if err != nil {
		return 0, err
	}
	for _, u := range users {
		if u.ID == pushToken {
			return u.Duration, nil
		}
	}
	return 0, nil
}
