package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ghostshell/internal/domain"
	"ghostshell/internal/ports"
)

const keepAliveInterval = 5 * time.Second

var (
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)

	errSendClosed = errors.New("audio stream is already closed")
)

// Config controls Deepgram websocket settings. Language applies when the
// stream itself does not ask for one.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool

	// NetDialContext overrides how the websocket connection is dialed.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Provider implements ports.RecognitionProvider over the live websocket API.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			NetDialContext:   cfg.NetDialContext,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// StartStreaming opens one recognition stream. Missing or rejected
// credentials are reported as ports.ErrPermissionDenied.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", ports.ErrPermissionDenied)
	}

	endpoint, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: Deepgram rejected credentials (%d)", ports.ErrPermissionDenied, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect to Deepgram: %w", err)
	}

	s := newStream(conn, keepAliveInterval)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// stream is one live recognition connection. The writer stops once the
// reader is gone; done closes after both have returned.
type stream struct {
	conn *websocket.Conn

	audio     chan []byte
	fragments chan domain.RecognitionFragment
	sendDone  chan struct{}
	readDone  chan struct{}
	done      chan struct{}

	sendOnce  sync.Once
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newStream(conn *websocket.Conn, keepAlive time.Duration) *stream {
	s := &stream{
		conn:      conn,
		audio:     make(chan []byte, 32),
		fragments: make(chan domain.RecognitionFragment, 64),
		sendDone:  make(chan struct{}),
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(s.readDone)
		s.readLoop()
	}()
	go func() {
		defer wg.Done()
		s.writeLoop(keepAlive)
	}()
	go func() {
		wg.Wait()
		close(s.fragments)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errSendClosed
	default:
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.sendDone:
		return errSendClosed
	case <-s.done:
		if err := s.failure(); err != nil {
			return err
		}
		return errors.New("recognition stream closed")
	}
}

// CloseSend flushes queued audio and asks the provider to finish.
func (s *stream) CloseSend() error {
	s.sendOnce.Do(func() { close(s.sendDone) })
	return nil
}

func (s *stream) Fragments() <-chan domain.RecognitionFragment {
	return s.fragments
}

func (s *stream) Wait() error {
	<-s.done
	return s.failure()
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.failure()
}

func (s *stream) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail records the first real error. Normal websocket closes and a socket
// closed by Close are not errors, wrapped or not.
func (s *stream) fail(err error) {
	if err == nil || normalClose(err) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func normalClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return true
		}
	}
	return errors.Is(err, net.ErrClosed)
}

func (s *stream) writeLoop(keepAlive time.Duration) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.fail(fmt.Errorf("send audio: %w", err))
				return
			}
			ticker.Reset(keepAlive)
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAliveMessage); err != nil {
				s.fail(fmt.Errorf("send keepalive: %w", err))
				return
			}
		case <-s.sendDone:
			s.flush()
			return
		case <-s.readDone:
			return
		}
	}
}

func (s *stream) flush() {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.fail(fmt.Errorf("send audio: %w", err))
				return
			}
		default:
			if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); err != nil {
				s.fail(fmt.Errorf("close stream: %w", err))
			}
			return
		}
	}
}

func (s *stream) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read provider event: %w", err))
			return
		}

		fragment, ok, err := decodeMessage(payload)
		if err != nil {
			s.fail(err)
			return
		}
		if ok {
			s.emit(fragment)
		}
	}
}

// emit never blocks the reader; a consumer that fell behind loses interim text.
func (s *stream) emit(fragment domain.RecognitionFragment) {
	select {
	case s.fragments <- fragment:
	default:
	}
}
