package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a socket.
type originPolicy struct {
	log      *slog.Logger
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(log *slog.Logger, origins []string) originPolicy {
	policy := originPolicy{log: log, allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			policy.allowAll = true
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Warn("Ignoring invalid origin in configuration", "origin", origin)
				continue
			}
			policy.allowed[normalized] = struct{}{}
		}
	}
	return policy
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check lets through requests without an Origin header: they do not come
// from a browser.
func (p originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", header)
	return false
}
