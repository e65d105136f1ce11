package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/state"
	"placeme/pkg/store"
)

// Runner purges messages older than the configured period on a cron
// schedule. It is the only component that hard-deletes data on its own.
type Runner struct {
	cron   string
	period time.Duration
	batch  int
}

// New validates the retention configuration and returns a runner, or nil
// when retention is disabled.
func New(cfg config.RetentionConfig) (*Runner, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	period, err := config.ParsePeriod(cfg.Period)
	if err != nil {
		return nil, fmt.Errorf("invalid retention period %q: %w", cfg.Period, err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("retention period must be positive")
	}
	cron := cfg.Cron
	if cron == "" {
		cron = "0 3 * * *"
	}
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron %q", cron)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &Runner{cron: cron, period: period, batch: batch}, nil
}

// Run sleeps until each next scheduled tick and sweeps, until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	logger.Info("retention_started", "cron", r.cron, "period", r.period.String())
	for {
		next, err := gronx.NextTickAfter(r.cron, time.Now(), false)
		if err != nil {
			logger.Error("retention_schedule_failed", "cron", r.cron, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("retention_stopped")
			return
		case <-time.After(time.Until(next)):
		}
		if _, err := r.RunImmediate(); err != nil {
			logger.Error("retention_sweep_failed", "error", err)
		}
	}
}

// RunImmediate sweeps once until no more expired messages remain and
// returns the number purged.
func (r *Runner) RunImmediate() (int, error) {
	cutoff := time.Now().Add(-r.period).UTC().UnixNano()
	total := 0
	for {
		n, err := store.PurgeOlderThan(cutoff, r.batch)
		if err != nil {
			return total, err
		}
		total += n
		if n < r.batch {
			break
		}
	}
	if total > 0 {
		logger.Info("retention_swept", "purged", total)
	}
	writeMarker(total)
	return total, nil
}

// writeMarker records the last sweep so operators can see retention is
// alive without scraping logs.
func writeMarker(purged int) {
	dir := state.PathsVar.Retention
	if dir == "" {
		return
	}
	body := fmt.Sprintf("last_run=%s\npurged=%d\n", time.Now().UTC().Format(time.RFC3339), purged)
	if err := os.WriteFile(filepath.Join(dir, "last_run"), []byte(body), 0o600); err != nil {
		logger.Warn("retention_marker_failed", "error", err)
	}
}
