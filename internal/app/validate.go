package app

import (
	"fmt"

	"placeme/pkg/config"
	"placeme/pkg/logger"
)

// validateConfig rejects configurations that would start an unusable or
// silently insecure server.
func validateConfig(cfg *config.Config) error {
	total := len(cfg.Security.APIKeys.Backend) +
		len(cfg.Security.APIKeys.Frontend) +
		len(cfg.Security.APIKeys.Admin)
	if total == 0 {
		return fmt.Errorf("no API keys configured; set security.api_keys or PLACEME_BACKEND_KEYS")
	}
	if len(cfg.Security.APIKeys.Frontend) > 0 && len(cfg.Security.APIKeys.Backend) == 0 {
		logger.Warn("frontend_keys_without_backend",
			"detail", "frontend callers need signatures minted by a backend key")
	}
	if cfg.Security.RateLimit.RPS < 0 {
		return fmt.Errorf("security.rate_limit.rps must not be negative")
	}
	if cfg.Retention.Enabled && cfg.Retention.Period == "" {
		return fmt.Errorf("retention.enabled requires retention.period")
	}
	return nil
}
