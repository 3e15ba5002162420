package deepgram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ghostshell/internal/ports"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

// listenURL turns the REST base into the live websocket endpoint.
func listenURL(cfg Config, stream ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	encoding := stream.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	sampleRate := stream.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := stream.Channels
	if channels <= 0 {
		channels = 1
	}
	language := stream.Language
	if language == "" {
		language = cfg.Language
	}

	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("interim_results", strconv.FormatBool(stream.InterimResults))
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
