package telemetry

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// hijackableWriter simulates the real server's connection takeover.
type hijackableWriter struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (w *hijackableWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func TestRecorderDelegatesHijack(t *testing.T) {
	under := &hijackableWriter{ResponseRecorder: httptest.NewRecorder()}
	rec := &statusRecorder{ResponseWriter: under, status: http.StatusOK}
	var w http.ResponseWriter = rec
	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Fatal("recorder does not expose http.Hijacker")
	}
	if _, _, err := hj.Hijack(); err != nil {
		t.Fatalf("hijack: %v", err)
	}
	if !under.hijacked {
		t.Fatal("hijack was not delegated to the underlying writer")
	}
	if rec.status != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d after hijack, want %d", rec.status, http.StatusSwitchingProtocols)
	}
}

func TestRecorderHijackWithoutSupportFails(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("expected an error when the underlying writer cannot hijack")
	}
}

func TestMiddlewarePassesUpgradesThroughWhenSampling(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir, 1.0); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer Close()

	var sawHijacker bool
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, sawHijacker = w.(http.Hijacker)
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/realtime", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(&hijackableWriter{ResponseRecorder: httptest.NewRecorder()}, req)
	if !sawHijacker {
		t.Fatal("sampled handler lost the ability to hijack")
	}
}
