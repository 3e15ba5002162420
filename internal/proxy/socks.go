package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DialContextFunc dials a network connection.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// NewHTTPClient returns a client with the given timeout. When socksAddr is
// set every connection is dialed through that SOCKS5 proxy.
func NewHTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	dial, err := NewDialer(socksAddr)
	if err != nil {
		return nil, err
	}
	if dial == nil {
		return &http.Client{Timeout: timeout}, nil
	}

	return &http.Client{
		Transport: &http.Transport{DialContext: dial},
		Timeout:   timeout,
	}, nil
}

// NewDialer returns a SOCKS5 dial func, or nil when socksAddr is empty.
func NewDialer(socksAddr string) (DialContextFunc, error) {
	socksAddr = strings.TrimSpace(socksAddr)
	if socksAddr == "" {
		return nil, nil
	}

	addr, auth, err := parseAddr(socksAddr)
	if err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks dialer: %w", err)
	}

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			return contextDialer.DialContext(ctx, network, address)
		}
		return dialer.Dial(network, address)
	}, nil
}

func parseAddr(raw string) (string, *proxy.Auth, error) {
	if !strings.Contains(raw, "://") {
		return raw, nil, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid proxy address %q: %w", raw, err)
	}
	switch parsed.Scheme {
	case "socks5", "socks5h":
	default:
		return "", nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", nil, fmt.Errorf("invalid proxy address %q", raw)
	}

	var auth *proxy.Auth
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		auth = &proxy.Auth{User: parsed.User.Username(), Password: password}
	}
	return parsed.Host, auth, nil
}
