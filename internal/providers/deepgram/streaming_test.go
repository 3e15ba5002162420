package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ghostshell/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{})
	if p.cfg.APIBaseURL != defaultBaseURL {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", p.cfg.Model)
	}
}

func TestProviderStartStreamingRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{APIKey: "  "})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if !errors.Is(err, ports.ErrPermissionDenied) {
		t.Fatalf("expected missing key to be terminal, got %v", err)
	}
}

func TestListenURLDefaults(t *testing.T) {
	t.Parallel()

	got, err := listenURL(Config{Model: "nova-2"}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"wss://api.deepgram.com/v1/listen?",
		"encoding=linear16",
		"sample_rate=16000",
		"channels=1",
		"interim_results=false",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %s", want, got)
		}
	}
	if strings.Contains(got, "language=") {
		t.Fatalf("expected no language without configuration: %s", got)
	}
}

func TestListenURLCustomStream(t *testing.T) {
	t.Parallel()

	got, err := listenURL(
		Config{APIBaseURL: "http://localhost:8080/v1/", Model: "m", Language: "en-US", SmartFormat: true},
		ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, InterimResults: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"ws://localhost:8080/v1/listen?",
		"model=m",
		"sample_rate=8000",
		"channels=2",
		"interim_results=true",
		"smart_format=true",
		"language=en-US",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %s", want, got)
		}
	}
}

func TestListenURLStreamLanguageWins(t *testing.T) {
	t.Parallel()

	got, err := listenURL(Config{Model: "nova-2", Language: "en-US"}, ports.StreamingConfig{Language: "pt-BR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "language=pt-BR") || strings.Contains(got, "en-US") {
		t.Fatalf("expected stream language: %s", got)
	}
}

func TestListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := listenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected invalid base error")
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		text    string
		final   bool
		ok      bool
		err     string
	}{
		{name: "interim", payload: `{"type":"Results","channel":{"alternatives":[{"transcript":" ghost "}]}}`, text: "ghost", ok: true},
		{name: "final", payload: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"ghost status"}]}}`, text: "ghost status", final: true, ok: true},
		{name: "speech final", payload: `{"type":"Results","speech_final":true,"channel":{"alternatives":[{"transcript":"ok"}]}}`, text: "ok", final: true, ok: true},
		{name: "empty transcript", payload: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`},
		{name: "metadata", payload: `{"type":"Metadata","request_id":"x"}`},
		{name: "garbage", payload: `not json`},
		{name: "error description", payload: `{"type":"Error","description":"bad audio","message":"ignored"}`, err: "bad audio"},
		{name: "error message", payload: `{"type":"Error","message":"quota"}`, err: "quota"},
		{name: "error empty", payload: `{"type":"error"}`, err: "deepgram returned an unknown error"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fragment, ok, err := decodeMessage([]byte(tc.payload))
			if tc.err != "" {
				if err == nil || err.Error() != tc.err {
					t.Fatalf("expected error %q, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.ok || fragment.Text != tc.text || fragment.IsFinal != tc.final {
				t.Fatalf("unexpected fragment %+v ok=%v", fragment, ok)
			}
		})
	}
}

func TestStreamSendAfterCloseSend(t *testing.T) {
	t.Parallel()

	s := &stream{audio: make(chan []byte, 1), sendDone: make(chan struct{})}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
	if err := s.SendAudio([]byte("x")); !errors.Is(err, errSendClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if err := s.SendAudio(nil); err != nil {
		t.Fatalf("empty chunks are ignored, got %v", err)
	}
}

func TestStreamFailIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &stream{}
	s.fail(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	s.fail(fmt.Errorf("read provider event: %w", &websocket.CloseError{Code: websocket.CloseNormalClosure}))
	s.fail(fmt.Errorf("send audio: %w", net.ErrClosed))
	if err := s.failure(); err != nil {
		t.Fatalf("expected close errors to be ignored, got %v", err)
	}
	s.fail(fmt.Errorf("read provider event: %w", &websocket.CloseError{Code: websocket.CloseInternalServerErr}))
	if s.failure() == nil {
		t.Fatalf("expected abnormal close to be recorded")
	}
	s = &stream{}

	s.fail(errors.New("first"))
	s.fail(errors.New("second"))
	if err := s.failure(); err == nil || err.Error() != "first" {
		t.Fatalf("expected first error to win, got %v", err)
	}
}

func TestStreamSendsKeepAlive(t *testing.T) {
	t.Parallel()

	received := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		kind, payload, err := conn.ReadMessage()
		if err == nil && kind == websocket.TextMessage {
			received <- string(payload)
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	s := newStream(conn, 20*time.Millisecond)
	defer s.Close()

	select {
	case got := <-received:
		if got != string(keepAliveMessage) {
			t.Fatalf("unexpected message: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no keepalive sent")
	}
}

func TestProviderStreamsFragments(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("language") != "pt-BR" || r.Header.Get("Authorization") != "Token key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"ghost"}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"ghost status"}]}}`))

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage && strings.Contains(string(payload), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "key", APIBaseURL: srv.URL})
	session, err := p.StartStreaming(context.Background(), ports.StreamingConfig{Language: "pt-BR", InterimResults: true})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := session.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case fragment, ok := <-session.Fragments():
			if !ok {
				t.Fatalf("fragments closed early, got %v", got)
			}
			got = append(got, fragment.Text)
			if fragment.IsFinal != (len(got) == 2) {
				t.Fatalf("unexpected final flag on %+v", fragment)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for fragments, got %v", got)
		}
	}

	if err := session.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean end, got %v", err)
	}
}

func TestProviderStopsWithContext(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewProvider(Config{APIKey: "key", APIBaseURL: srv.URL})
	session, err := p.StartStreaming(ctx, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		_ = session.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after cancel")
	}
	if _, ok := <-session.Fragments(); ok {
		t.Fatalf("expected fragments closed")
	}
}

func TestProviderRejectedCredentialsArePermissionDenied(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "wrong", APIBaseURL: srv.URL})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if !errors.Is(err, ports.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestProviderUnavailableIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProvider(Config{APIKey: "key", APIBaseURL: srv.URL})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err == nil || errors.Is(err, ports.ErrPermissionDenied) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
