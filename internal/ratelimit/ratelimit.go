// Package ratelimit implements the fabric's two-tier sliding-window rate
// limiting. Windows are process-local and lock-protected; timestamps older
// than the window are evicted on every check, and restart loses all
// counters without functional impact.
package ratelimit

import (
	"hash/fnv"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limit is requests per window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// PerMinute is the common per-minute policy shorthand.
func PerMinute(n int) Limit {
	return Limit{MaxRequests: n, Window: time.Minute}
}

// Limiter tracks sliding windows keyed by (scope, identity).
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time

	lastSweep time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt for key under the given limit. When rejected it
// returns false and the number of seconds after which a retry can succeed.
func (l *Limiter) Allow(key string, limit Limit) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-limit.Window)

	w := l.windows[key]
	kept := w[:0]
	for _, t := range w {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit.MaxRequests {
		l.windows[key] = kept
		retryAfter := int(kept[0].Sub(cutoff).Seconds()) + 1
		return false, retryAfter
	}

	l.windows[key] = append(kept, now)
	l.sweepLocked(now)
	return true, 0
}

// sweepLocked opportunistically drops idle windows so the map stays
// bounded. Runs at most once a minute.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-10 * time.Minute)
	for key, w := range l.windows {
		if len(w) == 0 || !w[len(w)-1].After(cutoff) {
			delete(l.windows, key)
		}
	}
}

// EndpointRule binds a path template (with {id}-style parameters) to a
// limit. Matching uses an anchored regex with each parameter replaced by
// one path segment.
type EndpointRule struct {
	Template string
	Limit    Limit

	re *regexp.Regexp
}

// CompileTemplate turns a path template into an anchored regex, with
// each {param} matching exactly one path segment. The audit middleware
// shares this syntax for its route keys.
func CompileTemplate(template string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(template)
	// QuoteMeta escaped the braces; put the parameter wildcard back.
	escaped = regexp.MustCompile(`\\\{[^/}]+\\\}`).ReplaceAllString(escaped, `[^/]+`)
	return regexp.MustCompile("^" + escaped + "$")
}

// Policy is the per-service rate-limiting policy: the service-tier
// default plus the endpoint-tier rules.
type Policy struct {
	Service      string
	ServiceLimit Limit
	Endpoints    []EndpointRule
}

// DefaultEndpointRules is the fabric-wide endpoint-tier catalog. Every
// template names a route a service registers; reads on parameterized
// paths (photo fetch, match list) ride the service tier only.
func DefaultEndpointRules() []EndpointRule {
	return []EndpointRule{
		{Template: "/auth/validate", Limit: PerMinute(5)},
		{Template: "/auth/refresh", Limit: PerMinute(10)},
		{Template: "/media/photos", Limit: PerMinute(5)},
		{Template: "/discovery/like", Limit: PerMinute(30)},
		{Template: "/discovery/pass", Limit: PerMinute(30)},
		{Template: "/chat/conversations/{id}/messages", Limit: PerMinute(20)},
		{Template: "/reports", Limit: PerMinute(5)},
		{Template: "/discovery/report", Limit: PerMinute(5)},
		{Template: "/chat/reports", Limit: PerMinute(5)},
		{Template: "/admin/moderation/{action}", Limit: PerMinute(10)},
	}
}

// ServiceLimit returns the service-tier default for the named service.
func ServiceLimit(service string) Limit {
	switch service {
	case "auth-service":
		return PerMinute(10)
	case "media-service":
		return PerMinute(20)
	case "admin-service":
		return PerMinute(30)
	case "data-service":
		return PerMinute(100) // internal traffic only
	default:
		// profile, discovery, chat, notification
		return PerMinute(50)
	}
}

// NewPolicy builds the policy for a service with compiled endpoint rules.
func NewPolicy(service string) *Policy {
	rules := DefaultEndpointRules()
	for i := range rules {
		rules[i].re = CompileTemplate(rules[i].Template)
	}
	return &Policy{
		Service:      service,
		ServiceLimit: ServiceLimit(service),
		Endpoints:    rules,
	}
}

// Match returns the endpoint rule for path, or nil.
func (p *Policy) Match(path string) *EndpointRule {
	for i := range p.Endpoints {
		if p.Endpoints[i].re.MatchString(path) {
			return &p.Endpoints[i]
		}
	}
	return nil
}

// ClientIdentity derives a stable integer identity for an unauthenticated
// client from its address, honoring proxy headers.
func ClientIdentity(r *http.Request) string {
	addr := r.Header.Get("X-Forwarded-For")
	if addr != "" {
		// first hop is the original client
		if i := strings.IndexByte(addr, ','); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
	}
	if addr == "" {
		addr = r.Header.Get("X-Real-IP")
	}
	if addr == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		addr = host
	}
	h := fnv.New32a()
	h.Write([]byte(addr))
	return "addr:" + strconv.FormatUint(uint64(h.Sum32()), 10)
}

// AuthLimit is the extra limiter applied to /auth/* paths: 5 attempts per
// 5 minutes per client address.
var AuthLimit = Limit{MaxRequests: 5, Window: 5 * time.Minute}
