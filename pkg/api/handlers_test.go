package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"placeme/pkg/auth"
	"placeme/pkg/chat"
	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/models"
	"placeme/pkg/realtime"
	"placeme/pkg/store"
)

var testRouter http.Handler

func TestMain(m *testing.M) {
	logger.Init()
	dir, err := os.MkdirTemp("", "placeme-api-test")
	if err != nil {
		panic(err)
	}
	if err := store.Open(dir); err != nil {
		panic(err)
	}
	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{"bk": {}},
		SigningKeys: map[string]struct{}{"bk": {}},
	})

	hub := realtime.NewHub(64, 8, 0)
	h := &Handlers{
		Svc:          chat.NewService(hub),
		Hub:          hub,
		RunRetention: func() (int, error) { return 0, nil },
	}
	gwOpts := auth.GatewayOptions{
		RPS:          10000,
		Burst:        10000,
		FrontendKeys: map[string]struct{}{"fk": {}},
		BackendKeys:  map[string]struct{}{"bk": {}},
		AdminKeys:    map[string]struct{}{"ak": {}},
	}
	testRouter = NewRouter(h, func(next http.Handler) http.Handler {
		return auth.Gateway(gwOpts, next)
	})

	code := m.Run()
	_ = store.Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// do runs one request as the given user with the given API key.
func do(t *testing.T, method, path, apiKey, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "10.1.1.1:999"
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	testRouter.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	if rec := do(t, http.MethodGet, "/healthz", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := do(t, http.MethodGet, "/readyz", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	rec := do(t, http.MethodGet, "/v1/conversations", "", "alice", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: %d", rec.Code)
	}
}

func TestSendFetchOpenFlow(t *testing.T) {
	// bob -> alice, twice
	for i := 0; i < 2; i++ {
		rec := do(t, http.MethodPost, "/v1/messages", "bk", "flow-bob",
			map[string]string{"receiver_id": "flow-alice", "content": fmt.Sprintf("hello %d", i)})
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %d: %d %s", i, rec.Code, rec.Body.String())
		}
	}

	var convResp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	rec := do(t, http.MethodGet, "/v1/conversations", "bk", "flow-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("conversations: %d", rec.Code)
	}
	decode(t, rec, &convResp)
	var found *models.Conversation
	for i := range convResp.Conversations {
		if convResp.Conversations[i].Contact.ID == "flow-bob" {
			found = &convResp.Conversations[i]
		}
	}
	if found == nil {
		t.Fatal("conversation with flow-bob missing")
	}
	if found.UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", found.UnreadCount)
	}
	if found.LastMessage.Content != "hello 1" {
		t.Fatalf("last message %q", found.LastMessage.Content)
	}

	// opening flips the unread messages
	rec = do(t, http.MethodPost, "/v1/conversations/flow-bob/open", "bk", "flow-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("open: %d %s", rec.Code, rec.Body.String())
	}
	var openResp struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, rec, &openResp)
	if len(openResp.Messages) != 2 {
		t.Fatalf("history size %d", len(openResp.Messages))
	}

	rec = do(t, http.MethodGet, "/v1/conversations", "bk", "flow-alice", nil)
	decode(t, rec, &convResp)
	for _, c := range convResp.Conversations {
		if c.Contact.ID == "flow-bob" && c.UnreadCount != 0 {
			t.Fatalf("unread = %d after open", c.UnreadCount)
		}
	}
}

func TestPairHistoryQuery(t *testing.T) {
	for _, body := range []map[string]string{
		{"receiver_id": "ph-bob", "content": "first"},
		{"receiver_id": "ph-carol", "content": "for carol"},
	} {
		if rec := do(t, http.MethodPost, "/v1/messages", "bk", "ph-alice", body); rec.Code != http.StatusCreated {
			t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
		}
	}
	if rec := do(t, http.MethodPost, "/v1/messages", "bk", "ph-bob",
		map[string]string{"receiver_id": "ph-alice", "content": "second"}); rec.Code != http.StatusCreated {
		t.Fatalf("reply: %d", rec.Code)
	}

	rec := do(t, http.MethodGet, "/v1/messages?with=ph-bob", "bk", "ph-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pair fetch: %d %s", rec.Code, rec.Body.String())
	}
	var hist struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, rec, &hist)
	if len(hist.Messages) != 2 {
		t.Fatalf("pair history size %d, want 2", len(hist.Messages))
	}
	// chronological order, third parties excluded
	if hist.Messages[0].Content != "first" || hist.Messages[1].Content != "second" {
		t.Fatalf("pair history order: %+v", hist.Messages)
	}
	// reading through the query never flips read state
	if hist.Messages[1].IsRead {
		t.Fatal("pair query mutated read state")
	}

	if rec := do(t, http.MethodGet, "/v1/messages?with=bad/id", "bk", "ph-alice", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid counterparty id: %d", rec.Code)
	}
}

func TestSendRejectsBadBodies(t *testing.T) {
	cases := []map[string]string{
		{"content": "no target"},
		{"receiver_id": "x", "channel_id": "y", "content": "two targets"},
		{"receiver_id": "x"},
		{"receiver_id": "x", "content": "   \t\n"},
	}
	for i, body := range cases {
		rec := do(t, http.MethodPost, "/v1/messages", "bk", "bad-sender", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status %d", i, rec.Code)
		}
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	rec := do(t, http.MethodPost, "/v1/messages", "bk", "mr-bob",
		map[string]string{"receiver_id": "mr-alice", "content": "ping"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d", rec.Code)
	}
	var sent models.Message
	decode(t, rec, &sent)

	rec = do(t, http.MethodPost, "/v1/messages/read", "bk", "mr-alice",
		map[string][]string{"ids": {sent.ID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d %s", rec.Code, rec.Body.String())
	}
	var res map[string]int
	decode(t, rec, &res)
	if res["marked"] != 1 {
		t.Fatalf("marked = %d", res["marked"])
	}
}

func TestChannelLifecycle(t *testing.T) {
	rec := do(t, http.MethodPost, "/v1/channels", "bk", "ch-alice",
		map[string]interface{}{"name": "general", "members": []string{"ch-bob"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var ch models.Channel
	decode(t, rec, &ch)
	if !ch.HasMember("ch-alice") || !ch.HasMember("ch-bob") {
		t.Fatalf("members wrong: %+v", ch.Members)
	}

	rec = do(t, http.MethodPost, "/v1/messages", "bk", "ch-bob",
		map[string]string{"channel_id": ch.ID, "content": "hey all"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("channel send: %d %s", rec.Code, rec.Body.String())
	}

	// non-members cannot post or read
	rec = do(t, http.MethodPost, "/v1/messages", "bk", "ch-outsider",
		map[string]string{"channel_id": ch.ID, "content": "let me in"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider send: %d", rec.Code)
	}
	rec = do(t, http.MethodGet, "/v1/channels/"+ch.ID+"/messages", "bk", "ch-outsider", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider read: %d", rec.Code)
	}

	rec = do(t, http.MethodGet, "/v1/channels/"+ch.ID+"/messages", "bk", "ch-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("member read: %d", rec.Code)
	}
	var hist struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, rec, &hist)
	if len(hist.Messages) != 1 || hist.Messages[0].Content != "hey all" {
		t.Fatalf("history: %+v", hist.Messages)
	}

	rec = do(t, http.MethodPost, "/v1/channels/"+ch.ID+"/members", "bk", "ch-alice",
		map[string]string{"user_id": "ch-carol"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add member: %d %s", rec.Code, rec.Body.String())
	}

	// only the author (or admin) may delete the channel
	rec = do(t, http.MethodDelete, "/v1/channels/"+ch.ID, "bk", "ch-bob", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member delete: %d", rec.Code)
	}
	rec = do(t, http.MethodDelete, "/v1/channels/"+ch.ID, "bk", "ch-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("author delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, http.MethodGet, "/v1/channels/"+ch.ID, "bk", "ch-alice", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("channel survived deletion: %d", rec.Code)
	}
}

func TestChannelUnreadCount(t *testing.T) {
	rec := do(t, http.MethodPost, "/v1/channels", "bk", "cu-alice",
		map[string]interface{}{"name": "unread", "members": []string{"cu-bob"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var ch models.Channel
	decode(t, rec, &ch)
	for i := 0; i < 2; i++ {
		rec = do(t, http.MethodPost, "/v1/messages", "bk", "cu-alice",
			map[string]string{"channel_id": ch.ID, "content": fmt.Sprintf("note %d", i)})
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %d: %d", i, rec.Code)
		}
	}

	rec = do(t, http.MethodGet, "/v1/channels/"+ch.ID, "bk", "cu-bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	var got models.Channel
	decode(t, rec, &got)
	if got.Unread != 2 {
		t.Fatalf("unread = %d, want 2", got.Unread)
	}
	// the author's own messages never count against them
	rec = do(t, http.MethodGet, "/v1/channels/"+ch.ID, "bk", "cu-alice", nil)
	decode(t, rec, &got)
	if got.Unread != 0 {
		t.Fatalf("author unread = %d, want 0", got.Unread)
	}

	// reading the history flips the member's unread rows
	if rec := do(t, http.MethodGet, "/v1/channels/"+ch.ID+"/messages", "bk", "cu-bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	rec = do(t, http.MethodGet, "/v1/channels/"+ch.ID, "bk", "cu-bob", nil)
	decode(t, rec, &got)
	if got.Unread != 0 {
		t.Fatalf("unread = %d after read", got.Unread)
	}
}

func TestProfileEndpointsRoleGated(t *testing.T) {
	// frontend keys cannot write profiles
	rec := do(t, http.MethodPut, "/v1/profiles/pf-alice", "fk", "",
		map[string]string{"name": "Alice"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("frontend put: %d", rec.Code)
	}
	rec = do(t, http.MethodPut, "/v1/profiles/pf-alice", "bk", "",
		map[string]string{"name": "Alice", "avatar_url": "https://e.com/a.png"})
	if rec.Code != http.StatusOK {
		t.Fatalf("backend put: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, http.MethodGet, "/v1/profiles/pf-alice", "bk", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	var p models.Profile
	decode(t, rec, &p)
	if p.Name != "Alice" || p.Online {
		t.Fatalf("profile: %+v", p)
	}
}

func TestSignEndpointMintsVerifiableSignature(t *testing.T) {
	rec := do(t, http.MethodPost, "/v1/sign", "bk", "",
		map[string]string{"user_id": "sig-alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign: %d %s", rec.Code, rec.Body.String())
	}
	var res map[string]string
	decode(t, rec, &res)
	if !auth.VerifyUserSignature("sig-alice", res["signature"]) {
		t.Fatal("minted signature does not verify")
	}

	// frontend callers cannot mint
	rec = do(t, http.MethodPost, "/v1/sign", "fk", "",
		map[string]string{"user_id": "sig-alice"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("frontend sign: %d", rec.Code)
	}
}

func TestAdminSurfaceRoleGated(t *testing.T) {
	if rec := do(t, http.MethodGet, "/v1/admin/stats", "bk", "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("backend on admin stats: %d", rec.Code)
	}
	rec := do(t, http.MethodGet, "/v1/admin/stats", "ak", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin stats: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, http.MethodPost, "/v1/admin/retention/run", "ak", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retention trigger: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminForceDelete(t *testing.T) {
	rec := do(t, http.MethodPost, "/v1/messages", "bk", "fd-bob",
		map[string]string{"receiver_id": "fd-alice", "content": "oops"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d", rec.Code)
	}
	var sent models.Message
	decode(t, rec, &sent)

	// the receiver cannot delete it through the normal surface
	rec = do(t, http.MethodDelete, "/v1/messages/"+sent.ID, "bk", "fd-alice", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("receiver delete: %d", rec.Code)
	}
	// admin can
	rec = do(t, http.MethodDelete, "/v1/admin/messages/"+sent.ID, "ak", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin delete: %d %s", rec.Code, rec.Body.String())
	}
	if _, err := store.GetMessage(sent.ID); err == nil {
		t.Fatal("message survived admin delete")
	}
}
