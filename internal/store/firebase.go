package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// usersPath is the root of the per-user tree in the realtime database.
const usersPath = "users"

// defaultWatchInterval is how often WatchDuration polls for changes. The
// admin SDK's database client has no streaming listener, so subscriptions
// are emulated by polling.
const defaultWatchInterval = 2 * time.Second

// FirebaseStore implements Store on the Firebase Realtime Database.
type FirebaseStore struct {
	client        *db.Client
	watchInterval time.Duration
}

// NewFirebaseStore initialises a Firebase app from the service-account JSON
// file at credentialsFile and returns a store bound to databaseURL.
// If credentialsFile is empty, the SDK falls back to
// GOOGLE_APPLICATION_CREDENTIALS or the default service account.
func NewFirebaseStore(ctx context.Context, databaseURL, credentialsFile string) (*FirebaseStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining database client: %w", err)
	}

	slog.Info("session store initialised", "database_url", databaseURL)
	return &FirebaseStore{client: client, watchInterval: defaultWatchInterval}, nil
}

func (s *FirebaseStore) userRef(userID string) *db.Ref {
	return s.client.NewRef(usersPath).Child(userID)
}

// CallRequest reads users/{userID}/call_request. Absent nodes read as "".
func (s *FirebaseStore) CallRequest(ctx context.Context, userID string) (string, error) {
	var value string
	if err := s.userRef(userID).Child(FieldCallRequest).Get(ctx, &value); err != nil {
		return "", fmt.Errorf("reading call request for %s: %w", userID, err)
	}
	return value, nil
}

// SetCallRequest writes users/{userID}/call_request.
func (s *FirebaseStore) SetCallRequest(ctx context.Context, userID, value string) error {
	if err := s.userRef(userID).Child(FieldCallRequest).Set(ctx, value); err != nil {
		return fmt.Errorf("writing call request for %s: %w", userID, err)
	}
	return nil
}

// Duration reads users/{userID}/duration. Absent nodes read as zero.
func (s *FirebaseStore) Duration(ctx context.Context, userID string) (int64, error) {
	var seconds int64
	if err := s.userRef(userID).Child(FieldDuration).Get(ctx, &seconds); err != nil {
		return 0, fmt.Errorf("reading duration for %s: %w", userID, err)
	}
	return seconds, nil
}

// SetDuration writes users/{userID}/duration.
func (s *FirebaseStore) SetDuration(ctx context.Context, userID string, seconds int64) error {
	if err := s.userRef(userID).Child(FieldDuration).Set(ctx, seconds); err != nil {
		return fmt.Errorf("writing duration for %s: %w", userID, err)
	}
	return nil
}

// WatchDuration polls users/{userID}/duration and delivers the current value
// immediately, then every change. The channel closes on ctx cancellation.
func (s *FirebaseStore) WatchDuration(ctx context.Context, userID string) (<-chan int64, error) {
	current, err := s.Duration(ctx, userID)
	if err != nil {
		return nil, err
	}

	ch := make(chan int64, 1)
	ch <- current

	go func() {
		defer close(ch)
		last := current
		ticker := time.NewTicker(s.watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				value, err := s.Duration(ctx, userID)
				if err != nil {
					slog.Debug("duration watch poll failed", "user_id", userID, "error", err)
					continue
				}
				if value == last {
					continue
				}
				last = value
				select {
				case ch <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Users reads the whole users tree in one shot.
func (s *FirebaseStore) Users(ctx context.Context) ([]User, error) {
	var raw map[string]User
	if err := s.client.NewRef(usersPath).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := make([]User, 0, len(raw))
	for id, u := range raw {
		u.ID = id
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}
