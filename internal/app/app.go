package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"placeme/internal/retention"
	"placeme/pkg/banner"
	"placeme/pkg/chat"
	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/realtime"
	"placeme/pkg/shutdown"
	"placeme/pkg/state"
	"placeme/pkg/store"
	"placeme/pkg/telemetry"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// App owns process startup and teardown ordering.
type App struct{}

// New returns an App.
func New() *App { return &App{} }

// Run starts the server and blocks until ctx is cancelled. Teardown runs
// in reverse startup order so late subsystems never observe a closed
// store.
func (a *App) Run(ctx context.Context, flags config.Flags) error {
	cfgPath := config.ResolveConfigPath(flags.Config, flags.Set["config"])
	eff, envRes, err := config.LoadEffective(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.Set["addr"] {
		eff.Addr = normalizeAddr(flags.Addr)
		eff.Source = "flags"
	}
	if flags.Set["db"] || eff.DBPath == "" {
		eff.DBPath = flags.DB
	}
	cfg := eff.Config

	logger.InitWithLevel(cfg.Logging.Level)
	if err := validateConfig(cfg); err != nil {
		return err
	}

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return fmt.Errorf("state dirs: %w", err)
	}
	paths := state.PathsVar
	shutdown.CrashDir = paths.State
	if err := logger.AttachAuditFileSink(paths.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}
	if rate := telemetrySampleRate(); rate > 0 {
		if err := telemetry.Init(paths.Telemetry, rate); err != nil {
			logger.Warn("telemetry_unavailable", "error", err)
		}
	}

	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: envRes.BackendKeys,
		SigningKeys: envRes.SigningKeys,
		MaxContent:  int(config.ParseSize(cfg.Chat.MaxContent, 8*1024)),
		MaxIDLen:    cfg.Chat.MaxIDLen,
	})

	if err := store.Open(paths.Store); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}()
	defer telemetry.Close()

	hub := realtime.NewHub(
		cfg.Realtime.QueueCapacity,
		cfg.Realtime.SendBuffer,
		int64(config.ParseSize(cfg.Realtime.MaxPayload, 64*1024)),
	)
	go func() {
		defer shutdown.Recover()
		hub.Run(ctx)
	}()

	svc := chat.NewService(hub)

	runner, err := retention.New(cfg.Retention)
	if err != nil {
		return fmt.Errorf("retention config: %w", err)
	}
	if runner != nil {
		go func() {
			defer shutdown.Recover()
			runner.Run(ctx)
		}()
	}

	banner.Print(Version, eff.Addr, eff.DBPath, eff.Source)
	logger.Info("server_starting", "addr", eff.Addr, "db", eff.DBPath,
		"config_source", eff.Source, "version", Version)

	return a.startHTTP(ctx, eff, svc, hub, runner)
}

// normalizeAddr turns a bare ":8080" flag into host:port form.
func normalizeAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, port)
}

// telemetrySampleRate reads the sampling rate from the environment.
// Telemetry stays off unless explicitly enabled.
func telemetrySampleRate() float64 {
	v := os.Getenv("PLACEME_TELEMETRY_SAMPLE")
	if v == "" {
		return 0
	}
	rate, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return rate
}
