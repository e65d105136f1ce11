package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"placeme/pkg/logger"
	"placeme/pkg/utils"
)

// Role classifies the caller by the API key it presented.
type Role string

const (
	RoleFrontend Role = "frontend"
	RoleBackend  Role = "backend"
	RoleAdmin    Role = "admin"
)

type ctxKey string

const (
	ctxRole   ctxKey = "auth_role"
	ctxAPIKey ctxKey = "auth_api_key"
)

// GatewayOptions configures the edge middleware.
type GatewayOptions struct {
	AllowedOrigins []string
	IPWhitelist    []string
	RPS            float64
	Burst          int

	FrontendKeys map[string]struct{}
	BackendKeys  map[string]struct{}
	AdminKeys    map[string]struct{}
}

// Gateway wraps next with the edge checks every API request passes:
// CORS, optional IP whitelisting, per-address rate limiting and API key
// role resolution. The resolved role is placed on the request context.
func Gateway(opts GatewayOptions, next http.Handler) http.Handler {
	pool := newLimiterPool(opts.RPS, opts.Burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, opts.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-User-ID, X-User-Signature")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ip := remoteIP(r)
		if len(opts.IPWhitelist) > 0 && !ipAllowed(ip, opts.IPWhitelist) {
			logger.Warn("ip_rejected", "ip", ip, "path", r.URL.Path)
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		if !pool.Allow(ip) {
			logger.Warn("rate_limited", "ip", ip, "path", r.URL.Path)
			utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		key := apiKeyFrom(r)
		role, ok := resolveRole(key, opts)
		if !ok {
			logger.Warn("api_key_rejected", "ip", ip, "path", r.URL.Path,
				"headers", logger.SafeHeaders(r))
			utils.JSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		logger.LogRequest(r)
		ctx := context.WithValue(r.Context(), ctxRole, role)
		ctx = context.WithValue(ctx, ctxAPIKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RoleFromContext returns the role resolved by the gateway.
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(ctxRole).(Role)
	return role, ok
}

// RequireRole rejects requests whose resolved role is not one of the
// allowed roles.
func RequireRole(next http.Handler, allowed ...Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := RoleFromContext(r.Context())
		if !ok {
			utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		for _, a := range allowed {
			if role == a {
				next.ServeHTTP(w, r)
				return
			}
		}
		utils.JSONError(w, http.StatusForbidden, "forbidden")
	})
}

func resolveRole(key string, opts GatewayOptions) (Role, bool) {
	if key == "" {
		return "", false
	}
	if _, ok := opts.AdminKeys[key]; ok {
		return RoleAdmin, true
	}
	if _, ok := opts.BackendKeys[key]; ok {
		return RoleBackend, true
	}
	if _, ok := opts.FrontendKeys[key]; ok {
		return RoleFrontend, true
	}
	return "", false
}

func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	// websocket clients cannot set headers; allow key via query param
	return r.URL.Query().Get("api_key")
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipAllowed(ip string, allowed []string) bool {
	for _, a := range allowed {
		if a == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(a); err == nil {
			if p := net.ParseIP(ip); p != nil && cidr.Contains(p) {
				return true
			}
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
