package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	router "github.com/stagioo/Call-sub001/internal/adapters/http"
	"github.com/stagioo/Call-sub001/internal/adapters/notify"
	"github.com/stagioo/Call-sub001/internal/adapters/rtc"
	sig "github.com/stagioo/Call-sub001/internal/adapters/signal"
	"github.com/stagioo/Call-sub001/internal/adapters/store"
	"github.com/stagioo/Call-sub001/internal/app"
	"github.com/stagioo/Call-sub001/internal/app/orch"
	"github.com/stagioo/Call-sub001/internal/app/sfu"
	"github.com/stagioo/Call-sub001/internal/config"
	"github.com/stagioo/Call-sub001/internal/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "call-server",
		Short:         "Call session coordinator: signaling, access control and media relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := run(ctx, configPath); err != nil {
				log.Error().Err(err).Msg("server stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default config/config.<CONFIG_ENV>.yaml)")
	return cmd
}

func setupLogger(mode, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(ctx context.Context, configPath string) error {
	// Console output until the config says otherwise.
	setupLogger("debug", "info")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Mode, cfg.Log.Level)

	creators, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier := openNotifier(ctx, cfg)
	defer closeNotifier()

	sessions := app.NewSessions(app.SimplePolicy{})
	rooms := app.NewRooms(cfg.Rooms.MaxParticipants, sessions)
	access := app.NewAccess(rooms, creators, notifier, app.AccessPolicy{
		RequireReapproval: cfg.Access.RequireReapproval,
		ClaimUnowned:      cfg.Access.ClaimUnowned,
		RequestTTL:        cfg.Access.RequestTTL,
	})

	var (
		engine    core.MediaEngine
		rtcEngine *rtc.Engine
	)
	if cfg.Media.Enabled {
		rtcEngine = rtc.NewEngine(ctx, rtc.ConfigFromURLs(cfg.Media.ICEServers), sfu.NewRelayManager())
		engine = rtcEngine
	}
	media := app.NewMedia(rooms, engine)
	presence := app.NewPresence(rooms, sessions, media, engine)
	presence.SweepInterval = cfg.Supervisor.SweepInterval
	presence.IdleGrace = cfg.Rooms.IdleGrace
	presence.RequestTTL = cfg.Access.RequestTTL

	limiter := sig.NewRoomRateLimiter(cfg.Access.RequestRate, cfg.Access.RequestWindow)
	o := orch.New(orch.Orchestrator{
		Rooms:          rooms,
		Sessions:       sessions,
		Access:         access,
		Media:          media,
		Presence:       presence,
		Engine:         engine,
		Limiter:        limiter,
		TrustClientIDs: cfg.TrustClientIDs,
	})

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() { presence.Run(ctx) })
	wg.Go(func() { pruneLimiter(ctx, limiter, cfg.Access.RequestWindow) })
	serveErr := make(chan error, 1)
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("call server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if rtcEngine != nil {
		rtcEngine.Close()
	}
	if runErr != nil {
		// Background loops only stop with ctx.
		return runErr
	}
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (core.CreatorStore, func(), error) {
	if cfg.Store.PostgresDSN == "" {
		log.Info().Str("module", "main").Msg("using in-memory creator store")
		return store.NewMemoryStore(), func() {}, nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	log.Info().Str("module", "main").Msg("using postgres creator store")
	return pg, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pg.Close(closeCtx); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("close postgres store")
		}
	}, nil
}

// openNotifier always logs; Redis is added when configured and reachable.
func openNotifier(ctx context.Context, cfg *config.Config) (core.Notifier, func()) {
	if cfg.Notify.RedisAddr == "" {
		return notify.LogNotifier{}, func() {}
	}
	rn, err := notify.NewRedisNotifier(notify.RedisConfig{
		Addr:     cfg.Notify.RedisAddr,
		Password: cfg.Notify.RedisPassword,
		Channel:  cfg.Notify.RedisChannel,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "main").Msg("redis notifier disabled")
		return notify.LogNotifier{}, func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rn.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("module", "main").Str("addr", cfg.Notify.RedisAddr).Msg("redis unreachable, notifications are logged only")
	}
	return notify.Multi{notify.LogNotifier{}, rn}, func() {
		if err := rn.Close(); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("close redis notifier")
		}
	}
}

func pruneLimiter(ctx context.Context, l *sig.RoomRateLimiter, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Prune(); n > 0 {
				log.Debug().Str("module", "main").Int("users", n).Msg("rate limiter pruned")
			}
		}
	}
}
