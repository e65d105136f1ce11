package shutdown

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"placeme/pkg/logger"
	"placeme/pkg/state"
)

// CrashDir is where panic dumps are written; set during startup from the
// state directory layout.
var CrashDir string

// NotifyContext returns a context cancelled on SIGINT/SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// DumpCrash writes the panic value and stack to a timestamped file so the
// cause survives the process. It returns the dump path (empty on failure).
// Before startup resolves the state layout, dumps go to the artifact root
// when one is configured.
func DumpCrash(v interface{}) string {
	dir := CrashDir
	if dir == "" {
		dir = state.ArtifactPath("crashes")
	}
	if dir == "" {
		return ""
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	name := fmt.Sprintf("crash-%s.log", time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	body := fmt.Sprintf("panic: %v\n\n%s\n", v, debug.Stack())
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		logger.Error("crash_dump_failed", "error", err)
		return ""
	}
	logger.Error("crash_dumped", "path", path)
	return path
}

// Recover is deferred at goroutine roots: it dumps the panic and exits
// nonzero instead of letting the runtime print to stderr only.
func Recover() {
	if v := recover(); v != nil {
		DumpCrash(v)
		os.Exit(2)
	}
}

// Graceful shuts the HTTP server down within timeout, forcing a close when
// the deadline passes.
func Graceful(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info("http_shutdown_started", "timeout", timeout.String())
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_forced", "error", err)
		_ = srv.Close()
	}
	logger.Info("http_shutdown_complete")
}
