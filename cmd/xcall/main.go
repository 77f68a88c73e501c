package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/addiegupta/xcall/internal/api"
	"github.com/addiegupta/xcall/internal/audio"
	"github.com/addiegupta/xcall/internal/callsession"
	"github.com/addiegupta/xcall/internal/config"
	"github.com/addiegupta/xcall/internal/duration"
	"github.com/addiegupta/xcall/internal/feedback"
	"github.com/addiegupta/xcall/internal/metrics"
	"github.com/addiegupta/xcall/internal/prefs"
	"github.com/addiegupta/xcall/internal/provider"
	"github.com/addiegupta/xcall/internal/proximity"
	"github.com/addiegupta/xcall/internal/store"
	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting xcall",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	// Local preference store.
	pf, err := prefs.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open preference store", "error", err)
		os.Exit(1)
	}
	defer pf.Close()

	identity, err := resolveIdentity(cfg, pf)
	if err != nil {
		slog.Error("failed to resolve device identity", "error", err)
		os.Exit(1)
	}

	// The duration record is keyed by the device's push token; fall back
	// to the identity until a token has been registered.
	pushToken, err := pf.Get(prefs.KeyPushToken)
	if err != nil {
		slog.Error("failed to read push token", "error", err)
		os.Exit(1)
	}
	if pushToken == "" {
		pushToken = identity
	}

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Session store: remote when configured, in-memory otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		fs, err := store.NewFirebaseStore(appCtx, cfg.DatabaseURL, cfg.CredentialsFile)
		if err != nil {
			slog.Error("failed to initialise session store", "error", err)
			os.Exit(1)
		}
		st = fs
	} else {
		slog.Warn("no database-url configured, using in-memory session store")
		st = store.NewMemoryStore()
	}

	tracker := duration.NewTracker(st, pushToken, nil, logger)
	seedDurationCache(appCtx, st, pf, tracker, pushToken)
	go watchDuration(appCtx, st, pf, tracker, pushToken)

	// Device-facing components.
	routes := audio.NewRouteManager(&logOutput{logger: logger}, logger)
	player := audio.NewTonePlayer(&logToneDevice{logger: logger}, logger)
	guard := proximity.NewGuard(noSensor{}, &memWakeLock{}, logger)

	// Calling provider client.
	client := provider.NewLoopback(logger)
	if err := client.StartClient(identity); err != nil {
		slog.Error("failed to start provider client", "error", err)
		os.Exit(1)
	}

	var fb callsession.FeedbackPublisher
	if fbClient := feedback.NewClient(cfg.FeedbackURL, cfg.FeedbackAPIKey); fbClient.Configured() {
		fb = &feedbackAdapter{client: fbClient, logger: logger}
	}

	ctrl, err := callsession.NewController(callsession.Config{
		Identity: identity,
		Provider: client,
		Store:    st,
		Tracker:  tracker,
		Guard:    guard,
		Audio:    routes,
		Player:   player,
		Notifier: &logNotifier{logger: logger},
		Feedback: fb,
		Push:     &pushLogger{logger: logger},
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to create session controller", "error", err)
		os.Exit(1)
	}

	// Control API.
	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}
	collector := metrics.NewCollector(ctrl, tracker, time.Now())
	handler := api.NewServer(ctrl, tracker, routes, pf, jwtSecret, collector)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("control api error", "error", err)
	}

	// End any in-flight call so the duration delta is persisted before
	// the process exits.
	ctrl.EndCall()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("control api shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("xcall stopped")
}

// resolveIdentity returns the provider client identity: the configured one
// when present, else the persisted one, else a newly generated id that is
// stored for subsequent runs.
func resolveIdentity(cfg *config.Config, pf *prefs.Store) (string, error) {
	if cfg.Identity != "" {
		if err := pf.Set(prefs.KeyClientID, cfg.Identity); err != nil {
			return "", err
		}
		return cfg.Identity, nil
	}

	stored, err := pf.Get(prefs.KeyClientID)
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}

	generated := uuid.NewString()
	if err := pf.Set(prefs.KeyClientID, generated); err != nil {
		return "", err
	}
	slog.Info("generated new device identity", "identity", generated)
	return generated, nil
}

// seedDurationCache warms the tracker's cumulative-duration cache from the
// store's user list, falling back to the locally cached value when the
// store is unreachable.
func seedDurationCache(ctx context.Context, st store.Store, pf *prefs.Store, tracker *duration.Tracker, pushToken string) {
	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	total, err := duration.SeedStoredTotal(seedCtx, st, pushToken)
	if err != nil {
		slog.Warn("failed to seed duration from store, using local cache", "error", err)
		cached, cacheErr := pf.GetInt(prefs.KeyDurationCache)
		if cacheErr != nil {
			slog.Warn("failed to read local duration cache", "error", cacheErr)
			return
		}
		tracker.SetStoredTotal(cached)
		return
	}

	tracker.SetStoredTotal(total)
	if err := pf.SetInt(prefs.KeyDurationCache, total); err != nil {
		slog.Warn("failed to update local duration cache", "error", err)
	}
}

// watchDuration follows the store's duration record for this device and
// keeps the tracker and the local cache current.
func watchDuration(ctx context.Context, st store.Store, pf *prefs.Store, tracker *duration.Tracker, pushToken string) {
	ch, err := st.WatchDuration(ctx, pushToken)
	if err != nil {
		slog.Warn("duration subscription failed", "error", err)
		return
	}

	for total := range ch {
		tracker.SetStoredTotal(total)
		if err := pf.SetInt(prefs.KeyDurationCache, total); err != nil {
			slog.Warn("failed to update local duration cache", "error", err)
		}
	}
}
