package middleware

import (
	"net/http"
	"strings"
)

// CORSConfig controls which browser origins may call the intake API.
type CORSConfig struct {
	// AllowedOrigins is an allowlist; "*" echoes any Origin back.
	AllowedOrigins []string
	// ExtraHeaders are accepted in addition to Authorization and Content-Type.
	ExtraHeaders []string
	MaxAge       string
}

// CORS applies cfg to every request. Preflights from allowed origins are
// answered directly; preflights from other origins fall through.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range cfg.AllowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			allowAny = true
		default:
			allow[strings.TrimRight(origin, "/")] = struct{}{}
		}
	}

	headers := append([]string{"Authorization", "Content-Type"}, cfg.ExtraHeaders...)
	allowedHeaders := strings.Join(headers, ", ")
	const allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	maxAge := cfg.MaxAge
	if maxAge == "" {
		maxAge = "600"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := false
			if origin != "" {
				_, listed := allow[origin]
				allowed = allowAny || listed
			}
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", allowedHeaders)
				h.Set("Access-Control-Allow-Methods", allowedMethods)
				h.Set("Access-Control-Max-Age", maxAge)
			}

			if allowed && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
