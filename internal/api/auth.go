package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"salonflow/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"

	permReadAvailability  = "read:availability"
	permReadChanges       = "read:changes"
	permWriteAppointments = "write:appointments"
	permAdmin             = "admin"

	clientKeyUnknown = "unknown"
)

// HTTPAuth authenticates requests by API key and enforces per-client
// rate limits.
type HTTPAuth struct {
	cfg *config.APIConfig

	clientsByAPIKey map[string]config.APIClientKey
	limiter         *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	return &HTTPAuth{
		cfg:             cfg,
		clientsByAPIKey: m,
		limiter:         newRateLimiter(cfg),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, ok := a.authenticate(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			if !a.authorize(client, r) {
				writeError(w, http.StatusForbidden, "permission denied")
				return
			}
		}

		if a.cfg.RateLimit.RPS > 0 && !a.limiter.Allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) authenticate(r *http.Request) (config.APIClientKey, bool) {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return config.APIClientKey{}, false
	}

	client, ok := a.clientsByAPIKey[apiKey]
	if !ok {
		return config.APIClientKey{}, false
	}
	if subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) != 1 {
		return config.APIClientKey{}, false
	}
	return client, true
}

func (a *HTTPAuth) authorize(client config.APIClientKey, r *http.Request) bool {
	required := requiredPermission(r.Method, r.URL.Path)
	if required == "" {
		return true
	}

	// An empty permissions list means allow-all.
	if len(client.Permissions) == 0 {
		return true
	}

	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func requiredPermission(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return permAdmin
	case strings.HasPrefix(path, "/api/v1/availability/"):
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/changes"):
		return permReadChanges
	case strings.HasPrefix(path, "/api/v1/appointments"),
		strings.HasPrefix(path, "/api/v1/blocked-times"):
		if method == http.MethodGet {
			return permReadAvailability
		}
		return permWriteAppointments
	default:
		return ""
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}

func (a *HTTPAuth) headerName() string {
	name := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if name == "" {
		name = apiKeyHeaderDefault
	}
	return name
}

// ClientName resolves the configured name for an API key, for audit
// fields and poll-state bookkeeping.
func (a *HTTPAuth) ClientName(r *http.Request) string {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if client, ok := a.clientsByAPIKey[apiKey]; ok && client.Name != "" {
		return client.Name
	}
	return clientKeyUnknown
}
