// Package ocigate implements the request-gating middleware described
// in §4.E: per-client-IP auth-failure rate limiting, bearer-token
// verification, and scope-to-request matching, wrapping the
// ociserver handler. It's new: the teacher's ociserver trusts
// whatever Interface it's given and performs no authentication of
// its own.
package ocigate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/warehouse-labs/registry/ociauth"
)

// Config configures a Gatekeeper.
type Config struct {
	// Authority verifies bearer tokens presented by clients.
	Authority *ociauth.Authority

	// Realm is reported in the WWW-Authenticate challenge so
	// clients know where to request a token.
	Realm string

	// Service is the service name reported in the challenge; it
	// must match Authority's configured service.
	Service string

	// MaxAuthFailures and FailureWindow bound the rolling
	// auth-failure rate per client IP: once a client has failed
	// MaxAuthFailures times within FailureWindow, further requests
	// from that IP are rejected with 429 until the window's tokens
	// replenish.
	MaxAuthFailures int
	FailureWindow   time.Duration
}

// Gatekeeper wraps an http.Handler (normally ociserver's) with the
// five-step procedure from §4.E.
type Gatekeeper struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New returns a Gatekeeper using cfg.
func New(cfg Config) *Gatekeeper {
	return &Gatekeeper{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wrap returns an http.Handler that gates requests to next according
// to §4.E's five-step procedure, operating on requests under /v2/ and
// the privileged /admin/ GC routes. The catalog endpoint
// (/v2/_catalog) is exempted from the scope check (step 3/4) but still
// subject to token verification and the failure rate limit. Requests
// outside those prefixes, including the token endpoint, are passed to
// next without any check.
func (g *Gatekeeper) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, "/v2/") && !strings.HasPrefix(req.URL.Path, "/admin/") {
			next.ServeHTTP(resp, req)
			return
		}

		ip := clientIP(req)

		// Step 1: rolling auth-failure rate limit.
		if g.isBlocked(ip) {
			g.challenge(resp)
			writeDenied(resp, http.StatusTooManyRequests, "too many authentication attempts")
			return
		}

		// Step 2: bearer token verification.
		claims, err := g.verifyBearer(req)
		if err != nil {
			g.recordFailure(ip)
			g.challenge(resp)
			writeUnauthorized(resp, err)
			return
		}

		// Step 5 (success path of step 2): clear the failure
		// counter as soon as the token itself checks out, before
		// the scope check, matching the original gatekeeper.
		g.clearFailures(ip)

		// Steps 3-4: derive the required grant and check scope,
		// except for routes that carry no scope requirement at all.
		// Scope denials don't count against the auth-failure budget.
		grant, scoped := requestGrant(req)
		if scoped && !grants(claims.Scope, grant) {
			writeDenied(resp, http.StatusForbidden, "requested access to the resource is denied")
			return
		}

		next.ServeHTTP(resp, req)
	})
}

func (g *Gatekeeper) limiterFor(ip string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[ip]
	if !ok {
		n := g.cfg.MaxAuthFailures
		w := g.cfg.FailureWindow
		l = rate.NewLimiter(rate.Every(w/time.Duration(n)), n)
		g.limiters[ip] = l
	}
	return l
}

func (g *Gatekeeper) isBlocked(ip string) bool {
	g.mu.Lock()
	l, ok := g.limiters[ip]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return l.Tokens() < 1
}

func (g *Gatekeeper) recordFailure(ip string) {
	g.limiterFor(ip).Allow()
}

func (g *Gatekeeper) clearFailures(ip string) {
	g.mu.Lock()
	delete(g.limiters, ip)
	g.mu.Unlock()
}

func (g *Gatekeeper) verifyBearer(req *http.Request) (ociauth.Claims, error) {
	h := req.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ociauth.Claims{}, fmt.Errorf("authentication required")
	}
	return g.cfg.Authority.VerifyToken(token)
}

// challenge sets the WWW-Authenticate header clients use to discover
// where to request a token. It's only sent on the throttled (429) and
// unauthorized (401) responses; a plain scope denial (403) carries no
// challenge, matching the original gatekeeper.
func (g *Gatekeeper) challenge(resp http.ResponseWriter) {
	resp.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q,service=%q`, g.cfg.Realm, g.cfg.Service))
}

func clientIP(req *http.Request) string {
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	return req.RemoteAddr
}
