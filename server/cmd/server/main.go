package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/obsidianstack/roomrelay/server/internal/alerts"
	"github.com/obsidianstack/roomrelay/server/internal/api"
	"github.com/obsidianstack/roomrelay/server/internal/auth"
	"github.com/obsidianstack/roomrelay/server/internal/config"
	"github.com/obsidianstack/roomrelay/server/internal/metrics"
	"github.com/obsidianstack/roomrelay/server/internal/probe"
	"github.com/obsidianstack/roomrelay/server/internal/rooms"
	"github.com/obsidianstack/roomrelay/server/internal/sessions"
	"github.com/obsidianstack/roomrelay/server/internal/web"
	"github.com/obsidianstack/roomrelay/server/internal/ws"
)

// shutdownTimeout bounds how long in-flight HTTP requests may take to drain.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "load environment variables from this file if it exists")
	issueToken := flag.String("issue-token", "", "print an admin JWT for this subject and exit (auth.mode jwt)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load env file", "path", *envFile, "err", err)
	}

	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	verifier := auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key(), cfg.Auth.JWTSecret())

	if *issueToken != "" {
		tok, err := verifier.Sign(*issueToken, *tokenTTL)
		if err != nil {
			slog.Error("failed to issue token", "err", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	slog.Info("roomrelay starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Auth.Mode,
		"room_ttl", cfg.Rooms.TTL,
		"session_ttl", cfg.Sessions.TTL,
		"sliding_ttl", cfg.Rooms.SlidingTTL,
	)
	if cfg.Auth.Mode != auth.ModeNone && cfg.Auth.Mode != "" && !verifier.Enabled() {
		slog.Warn("auth credential is empty, admin API is unauthenticated",
			"mode", cfg.Auth.Mode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Registries with background TTL eviction.
	roomReg := rooms.New(rooms.Options{
		TTL:          cfg.Rooms.TTL,
		Buffer:       cfg.Rooms.Buffer,
		ReapInterval: cfg.Rooms.ReapInterval,
		SlidingTTL:   cfg.Rooms.SlidingTTL,
	})
	sessionReg := sessions.New(sessions.Options{
		TTL:          cfg.Sessions.TTL,
		TokenLength:  cfg.Sessions.TokenLength,
		ReapInterval: cfg.Sessions.ReapInterval,
	})
	go roomReg.Store().Run(ctx)
	go sessionReg.Store().Run(ctx)

	m := metrics.New(roomReg.Len, sessionReg.Len)

	engine, err := alerts.New(cfg.Alerts)
	if err != nil {
		slog.Error("failed to build alert rules", "err", err)
		os.Exit(1)
	}
	alertsDone := make(chan struct{})
	go func() {
		engine.Run(ctx, cfg.Alerts.Interval, m.Values)
		close(alertsDone)
	}()

	hub := ws.New(roomReg, m, ws.Options{
		MaxMessageSize: cfg.Server.MaxMessageSize,
		CheckOrigin:    web.OriginChecker(cfg.Server.AllowedOrigins),
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	router := web.New(web.Config{
		Rooms:          roomReg,
		Sessions:       sessionReg,
		Metrics:        m,
		Hub:            hub,
		Admin:          verifier.Middleware(api.New(roomReg, sessionReg.Len, m).SetAlerts(engine)),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthHeader:     cfg.Auth.EffectiveHeader(),
		SecureCookie:   cfg.Sessions.SecureCookie(),
	})

	// Optional gRPC health probe.
	var hp *probe.Probe
	if cfg.Server.GRPCPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port",
				"port", cfg.Server.GRPCPort, "err", err)
			os.Exit(1)
		}
		hp = probe.New(verifier)
		go func() {
			if err := hp.Serve(lis); err != nil {
				slog.Error("gRPC probe stopped", "err", err)
			}
		}()
	}

	// Log level follows the config file.
	if watch {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				level.Set(updated.Log.SlogLevel())
				slog.Info("log level updated", "level", updated.Log.Level)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("roomrelay shutting down")

	if hp != nil {
		hp.SetServing(false)
	}
	// Hijacked WebSocket connections are not tracked by Shutdown; the hub
	// closes them when ctx is cancelled.
	<-hubDone
	<-alertsDone

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "err", err)
	}
	if hp != nil {
		hp.Shutdown()
	}
}

// loadConfig reads path, falling back to defaults when the file does not
// exist. watch reports whether the file is there to be watched.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Defaults(), false, nil
	default:
		return nil, false, err
	}
}
