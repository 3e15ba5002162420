package webbridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ghostshell/internal/domain"
	"ghostshell/internal/host"
)

type fakeHost struct {
	mu       sync.Mutex
	shown    int
	hidden   int
	commands []string
	result   domain.OSCommandResult
	err      error
	logs     []domain.LogEntry
}

func (h *fakeHost) ShowWindow() {
	h.mu.Lock()
	h.shown++
	h.mu.Unlock()
}

func (h *fakeHost) HideWindow() {
	h.mu.Lock()
	h.hidden++
	h.mu.Unlock()
}

func (h *fakeHost) GhostConfig() domain.GhostConfig {
	return domain.GhostConfig{Operator: "walker", Version: "1.0.0", Mode: "stealth"}
}

func (h *fakeHost) CheckStatus(context.Context) domain.NetworkStatus {
	return domain.NetworkOnline
}

func (h *fakeHost) RunOSCommand(_ context.Context, identifier string) (domain.OSCommandResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, identifier)
	return h.result, h.err
}

func (h *fakeHost) RecentLogs() []domain.LogEntry {
	return h.logs
}

type fakeLogs struct {
	mu  sync.Mutex
	fns []func(domain.LogEntry)
}

func (l *fakeLogs) Subscribe(fn func(domain.LogEntry)) func() {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
	return func() {}
}

func (l *fakeLogs) emit(entry domain.LogEntry) {
	l.mu.Lock()
	fns := append([](func(domain.LogEntry))(nil), l.fns...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(entry)
	}
}

func newTestServer(t *testing.T, h *fakeHost, logs *fakeLogs) (*Server, *httptest.Server) {
	t.Helper()
	var src LogSource
	if logs != nil {
		src = logs
	}
	s := New(h, src, []string{"http://localhost:5173"})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.close()
		srv.Close()
	})
	return s, srv
}

func TestServerHealthAndConfig(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeHost{}, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected healthz response: %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/api/config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	defer resp.Body.Close()
	var cfg domain.GhostConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cfg.Operator != "walker" || cfg.Mode != "stealth" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestServerStatus(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeHost{}, nil)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload["status"] != "ONLINE" {
		t.Fatalf("unexpected status payload: %v", payload)
	}
}

func TestServerOSCommand(t *testing.T) {
	t.Parallel()

	h := &fakeHost{result: domain.OSCommandResult{Action: "VOLUME_UP", Success: true}}
	_, srv := newTestServer(t, h, nil)

	resp, err := http.Post(srv.URL+"/api/os-command", "application/json", strings.NewReader(`{"command":"VOLUME_UP"}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var result domain.OSCommandResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !result.Success || len(h.commands) != 1 || h.commands[0] != "VOLUME_UP" {
		t.Fatalf("unexpected result %+v commands=%v", result, h.commands)
	}
}

func TestServerOSCommandValidation(t *testing.T) {
	t.Parallel()

	h := &fakeHost{}
	_, srv := newTestServer(t, h, nil)

	resp, err := http.Post(srv.URL+"/api/os-command", "application/json", strings.NewReader(`{"command":"  "}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(h.commands) != 0 {
		t.Fatalf("expected no command to run, got %v", h.commands)
	}
}

func TestServerOSCommandTimeout(t *testing.T) {
	t.Parallel()

	h := &fakeHost{err: host.ErrResultTimeout}
	_, srv := newTestServer(t, h, nil)

	resp, err := http.Post(srv.URL+"/api/os-command", "application/json", strings.NewReader(`{"command":"PANIC_MODE"}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", resp.StatusCode)
	}
}

func TestServerWindowAndLogs(t *testing.T) {
	t.Parallel()

	h := &fakeHost{logs: []domain.LogEntry{{ID: "1", Msg: "boot", Type: domain.LogInfo}}}
	_, srv := newTestServer(t, h, nil)

	for _, path := range []string{"/api/window/show", "/api/window/hide", "/api/window/hide"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("post %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("unexpected status for %s: %d", path, resp.StatusCode)
		}
	}
	if h.shown != 1 || h.hidden != 2 {
		t.Fatalf("unexpected window calls: shown=%d hidden=%d", h.shown, h.hidden)
	}

	resp, err := http.Get(srv.URL + "/api/logs")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	defer resp.Body.Close()
	var logs []domain.LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Msg != "boot" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestServerEventsStream(t *testing.T) {
	t.Parallel()

	logs := &fakeLogs{}
	s, srv := newTestServer(t, &fakeHost{}, logs)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	logs.emit(domain.LogEntry{ID: "a", Msg: "Gateway online", Type: domain.LogSuccess})
	s.OSCommandResult(domain.OSCommandResult{Action: "VOLUME_MUTE", Success: true})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Channel string          `json:"channel"`
		Payload domain.LogEntry `json:"payload"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if first.Channel != "log-data" || first.Payload.Msg != "Gateway online" {
		t.Fatalf("unexpected first message: %+v", first)
	}

	var second struct {
		Channel string                 `json:"channel"`
		Payload domain.OSCommandResult `json:"payload"`
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if second.Channel != "os-command-result" || second.Payload.Action != "VOLUME_MUTE" {
		t.Fatalf("unexpected second message: %+v", second)
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New(&fakeHost{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestServerRefusesForeignOrigins(t *testing.T) {
	t.Parallel()

	h := &fakeHost{}
	_, srv := newTestServer(t, h, nil)

	post := func(origin string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/window/hide", nil)
		if err != nil {
			t.Fatalf("new request failed: %v", err)
		}
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post failed: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := post("http://evil.example"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %d", resp.StatusCode)
	}
	h.mu.Lock()
	hidden := h.hidden
	h.mu.Unlock()
	if hidden != 0 {
		t.Fatalf("foreign origin reached the window: hidden=%d", hidden)
	}

	if resp := post(srv.URL); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected same-origin post to pass, got %d", resp.StatusCode)
	}
	resp := post("http://localhost:5173")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected allowlisted origin to pass, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %q", got)
	}
	h.mu.Lock()
	hidden = h.hidden
	h.mu.Unlock()
	if hidden != 2 {
		t.Fatalf("expected two hides, got %d", hidden)
	}
}

func TestServerAnswersPreflightForAllowedOrigin(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t, &fakeHost{}, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/os-command", nil)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected preflight status: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %q", got)
	}
}

func TestServerEventsRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t, &fakeHost{}, nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v (err=%v)", resp, err)
	}
	if s.hub.len() != 0 {
		t.Fatalf("foreign client registered")
	}

	conn, _, err = websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {srv.URL}})
	if err != nil {
		t.Fatalf("same-origin dial failed: %v", err)
	}
	conn.Close()
}

func TestOriginPolicyNormalizesAllowlist(t *testing.T) {
	t.Parallel()

	p := newOriginPolicy([]string{" HTTPS://Ops.Example/ ", ""})
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:7777", true},
		{"http://127.0.0.1:7777", "127.0.0.1:7777", true},
		{"https://ops.example", "127.0.0.1:7777", true},
		{"https://ops.example.evil", "127.0.0.1:7777", false},
		{"null", "127.0.0.1:7777", false},
		{"http://127.0.0.1:9999", "127.0.0.1:7777", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
		req.Host = tc.host
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := p.check(req); got != tc.want {
			t.Fatalf("check(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
	if len(p.list()) != 1 {
		t.Fatalf("unexpected allowlist: %v", p.list())
	}
}
