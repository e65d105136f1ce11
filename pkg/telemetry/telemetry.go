package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"placeme/pkg/logger"
)

// record is one sampled request observation, written as a jsonl row.
type record struct {
	TS       string `json:"ts"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Duration int64  `json:"duration_ms"`
	Remote   string `json:"remote"`
}

var (
	mu     sync.Mutex
	out    *bufio.Writer
	file   *os.File
	sample float64
)

// Init opens the jsonl sink under dir and sets the sampling rate in
// [0,1]. A rate of 0 disables the middleware entirely.
func Init(dir string, rate float64) error {
	if rate <= 0 {
		return nil
	}
	if rate > 1 {
		rate = 1
	}
	path := filepath.Join(dir, "requests.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	mu.Lock()
	file, out, sample = f, bufio.NewWriter(f), rate
	mu.Unlock()
	logger.Info("telemetry_enabled", "path", path, "sample_rate", rate)
	return nil
}

// Close flushes and closes the sink.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		_ = out.Flush()
	}
	if file != nil {
		_ = file.Close()
	}
	out, file = nil, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer so sampled websocket upgrades
// can take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware samples requests into the jsonl sink. When telemetry is not
// initialized it is a pass-through.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		enabled := out != nil
		rate := sample
		mu.Unlock()
		if !enabled || rand.Float64() >= rate {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		row := record{
			TS:       start.UTC().Format(time.RFC3339Nano),
			Method:   r.Method,
			Path:     r.URL.Path,
			Status:   rec.status,
			Duration: time.Since(start).Milliseconds(),
			Remote:   r.RemoteAddr,
		}
		b, err := json.Marshal(row)
		if err != nil {
			return
		}
		mu.Lock()
		if out != nil {
			_, _ = out.Write(append(b, '\n'))
			_ = out.Flush()
		}
		mu.Unlock()
	})
}
