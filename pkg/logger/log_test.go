package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeHeadersRedactsCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	req.Header.Set("X-API-Key", "sekrit-key")
	req.Header.Set("X-User-Signature", "deadbeef")
	req.Header.Set("X-User-ID", "alice")

	out := SafeHeaders(req)
	for _, leak := range []string{"sekrit", "deadbeef"} {
		if strings.Contains(out, leak) {
			t.Fatalf("credential %q leaked: %s", leak, out)
		}
	}
	if !strings.Contains(out, "alice") {
		t.Fatalf("non-sensitive header dropped: %s", out)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Fatalf("no redaction marker: %s", out)
	}
}

func TestAuditSinkWritesMarker(t *testing.T) {
	dir := t.TempDir()
	if err := AttachAuditFileSink(dir); err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(func() { Audit = nil })

	AuditLog("audit_test_event", "k", "v")
	b, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "audit_sink_attached") {
		t.Fatal("attach marker missing")
	}
	if !strings.Contains(string(b), "audit_test_event") {
		t.Fatal("audit event missing")
	}
}

func TestAuditSinkRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := AttachAuditFileSink(link); err == nil {
		t.Fatal("symlinked audit dir accepted")
	}
}
