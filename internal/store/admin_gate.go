package store

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/medrex/supply/pkg/logger"
)

// AdminGate restricts administrative routes to requests coming from an
// allow-listed network, or carrying a valid admin token when tokens are on
type AdminGate struct {
	networks []*net.IPNet
	tokens   *AdminTokens
	logger   *logger.Logger
}

// NewAdminGate parses the allowed CIDRs
func NewAdminGate(cidrs []string, log *logger.Logger) (*AdminGate, error) {
	if log == nil {
		log = logger.Discard()
	}
	g := &AdminGate{logger: log}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid admin CIDR %q: %w", c, err)
		}
		g.networks = append(g.networks, n)
	}
	return g, nil
}

// WithTokens also admits callers presenting a bearer token from t
func (g *AdminGate) WithTokens(t *AdminTokens) *AdminGate {
	g.tokens = t
	return g
}

// Allowed reports whether remoteAddr (host:port or bare ip) is allow-listed
func (g *AdminGate) Allowed(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range g.networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware answers 403 location_restricted for callers outside the
// allow-list
func (g *AdminGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allowed(r.RemoteAddr) && !g.tokenAllowed(r) {
			g.logger.WithContext(r.Context()).WithField("client_ip", r.RemoteAddr).Warn("Admin request from outside allowed networks")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "location_restricted"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *AdminGate) tokenAllowed(r *http.Request) bool {
	if g.tokens == nil {
		return false
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}

	claims, err := g.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		g.logger.WithContext(r.Context()).WithError(err).Warn("Rejected admin token")
		return false
	}
	g.logger.WithContext(r.Context()).WithField("subject", claims.Subject).Debug("Admin token accepted")
	return true
}
