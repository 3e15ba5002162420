package webbridge

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// originPolicy accepts requests without an Origin header, requests whose
// Origin names the bridge's own host, and origins listed explicitly.
type originPolicy struct {
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		if origin = normalizeOrigin(origin); origin != "" {
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) list() []string {
	out := make([]string, 0, len(p.allowed))
	for origin := range p.allowed {
		out = append(out, origin)
	}
	return out
}

func (p originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

// middleware rejects cross-site requests before any handler runs. CORS
// headers alone do not stop a browser from sending a simple POST.
func (p originPolicy) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !p.check(c.Request()) {
			return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
		}
		return next(c)
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
