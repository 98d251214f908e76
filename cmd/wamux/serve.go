package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ricochet1k/wamux/internal/api"
	"github.com/ricochet1k/wamux/internal/autoreply"
	"github.com/ricochet1k/wamux/internal/autoreply/circuit"
	"github.com/ricochet1k/wamux/internal/config"
	"github.com/ricochet1k/wamux/internal/logging"
	"github.com/ricochet1k/wamux/internal/mirror"
	"github.com/ricochet1k/wamux/internal/qr"
	"github.com/ricochet1k/wamux/internal/realtime"
	"github.com/ricochet1k/wamux/internal/service"
	"github.com/ricochet1k/wamux/internal/session"
	"github.com/ricochet1k/wamux/internal/storage"
	"github.com/ricochet1k/wamux/internal/whatsapp"
)

const (
	deviceName      = "wamux"
	shutdownTimeout = 10 * time.Second
)

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := storage.NewCredentialStore(cfg.SessionsDir)
	if err != nil {
		return errors.Wrap(err, "open sessions directory")
	}

	policy, err := autoreply.New(ctx, cfg.PolicyConfig())
	if err != nil {
		return errors.Wrap(err, "configure auto-reply")
	}
	var guarded autoreply.Policy
	if policy != nil {
		breaker := circuit.NewBreaker(cfg.AutoReply.BreakerThreshold, cfg.AutoReply.BreakerCooldown)
		guarded = autoreply.NewGuard(policy, breaker, cfg.AutoReply.Timeout)
	} else {
		log.Warn().Str("provider", cfg.AutoReply.Provider).Msg("auto-reply disabled, no provider credentials")
	}

	broadcaster := service.NewEventBroadcaster(service.DefaultEventBufferSize)
	supervisor := service.NewSupervisor(service.SupervisorConfig{
		Registry:     session.NewRegistry(session.DefaultMessageLogCapacity),
		Credentials:  creds,
		Engine:       whatsapp.NewWhatsmeowEngine(log, deviceName),
		Broadcaster:  broadcaster,
		AutoReply:    guarded,
		Switch:       autoreply.NewSwitch(cfg.AutoReply.Enabled),
		SystemPrompt: cfg.AutoReply.SystemPrompt,
		ReplyTimeout: cfg.AutoReply.Timeout,
		RetryDelay:   cfg.RetryDelay,
		Logger:       log,
	})

	renderer := qr.NewRenderer(cfg.QRSize)
	hub := realtime.NewHub()
	handler := api.NewHandler(api.HandlerConfig{
		Supervisor: supervisor,
		Completion: policy,
		Hub:        hub,
		Snapshots:  realtime.NewSnapshotProvider(supervisor, renderer),
		Logger:     log,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var redisMirror *mirror.Mirror
	if cfg.Redis.Addr != "" {
		pub, closeRedis, err := mirror.NewRedisPublisher(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer closeRedis()
		redisMirror = mirror.New(mirror.Config{
			Publisher:   pub,
			Broadcaster: broadcaster,
			QR:          renderer,
			Prefix:      cfg.Redis.Prefix,
			Logger:      log,
		})
		log.Info().Str("addr", cfg.Redis.Addr).Str("prefix", cfg.Redis.Prefix).Msg("mirroring events to redis")
	}

	// Both consumers subscribe before Restore can broadcast anything.
	bridge := realtime.NewBridge(hub, broadcaster, renderer, log)
	bridgeSub := bridge.Subscribe()
	var mirrorSub *service.Subscriber
	if redisMirror != nil {
		mirrorSub = redisMirror.Subscribe()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Forward(gctx, bridgeSub) })
	if redisMirror != nil {
		g.Go(func() error { return redisMirror.Forward(gctx, mirrorSub) })
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("sessions_dir", creds.Root()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		if _, err := supervisor.Restore(gctx); err != nil {
			log.Error().Err(err).Msg("restore sessions")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		supervisor.Close()
		hub.Close()
		return errors.Wrap(err, "shutdown http server")
	})

	return g.Wait()
}
