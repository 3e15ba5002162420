package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"ghostshell/internal/domain"
)

const maxResponseBytes = 1 << 20

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// Client talks to the assistant core over HTTP.
type Client struct {
	baseURL string
	origin  string
	http    *http.Client
	newID   func() string
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		origin:  parsed.Scheme + "://" + parsed.Host,
		http:    httpClient,
		newID:   uuid.NewString,
	}, nil
}

type interactResponse struct {
	Response  string `json:"response"`
	Reply     string `json:"reply"`
	AudioURL  string `json:"audioUrl"`
	OSCommand string `json:"osCommand"`
}

// Interact posts one command to {base}/interact.
func (c *Client) Interact(ctx context.Context, req domain.CommandRequest) (domain.CommandResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.CommandResponse{}, fmt.Errorf("encode command: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interact", bytes.NewReader(body))
	if err != nil {
		return domain.CommandResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", c.newID())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.CommandResponse{}, fmt.Errorf("interact: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.CommandResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.CommandResponse{}, &StatusError{Code: resp.StatusCode, Body: snippet(payload)}
	}

	var decoded interactResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return domain.CommandResponse{}, fmt.Errorf("decode response: %w", err)
	}

	reply := strings.TrimSpace(decoded.Response)
	if reply == "" {
		reply = strings.TrimSpace(decoded.Reply)
	}

	return domain.CommandResponse{
		ReplyText: reply,
		AudioURL:  c.resolveAudioURL(decoded.AudioURL),
		OSCommand: strings.TrimSpace(decoded.OSCommand),
	}, nil
}

// resolveAudioURL joins relative audio paths to the backend origin.
func (c *Client) resolveAudioURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return c.origin + raw
}

func snippet(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
