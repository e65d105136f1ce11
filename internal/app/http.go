package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"placeme/internal/retention"
	"placeme/pkg/api"
	"placeme/pkg/auth"
	"placeme/pkg/chat"
	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/realtime"
	"placeme/pkg/shutdown"
)

// startHTTP wires the gateway around the API router, serves until ctx is
// cancelled and then drains connections.
func (a *App) startHTTP(ctx context.Context, eff config.EffectiveConfigResult, svc *chat.Service, hub *realtime.Hub, runner *retention.Runner) error {
	cfg := eff.Config

	handlers := &api.Handlers{Svc: svc, Hub: hub}
	if runner != nil {
		handlers.RunRetention = runner.RunImmediate
	}

	gwOpts := auth.GatewayOptions{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		IPWhitelist:    cfg.Security.IPWhitelist,
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		FrontendKeys:   keySet(cfg.Security.APIKeys.Frontend),
		BackendKeys:    config.GetBackendKeys(),
		AdminKeys:      keySet(cfg.Security.APIKeys.Admin),
	}
	gw := func(next http.Handler) http.Handler { return auth.Gateway(gwOpts, next) }

	srv := &http.Server{
		Addr:              eff.Addr,
		Handler:           api.NewRouter(handlers, gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer shutdown.Recover()
		var err error
		if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
			logger.Info("http_listening_tls", "addr", eff.Addr)
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			logger.Info("http_listening", "addr", eff.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdown.Graceful(srv, 15*time.Second)
		return nil
	}
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
