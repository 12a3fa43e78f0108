// Package gateway is the single ingress of the platform. It terminates
// client HTTP, selects a downstream service by URL prefix, rewrites the
// path, and forwards the request while preserving (and where necessary
// originating) the trace and correlation headers. Legacy unversioned
// paths redirect rather than proxy. The gateway never retries: transport
// failures surface as 503 and retry policy belongs to the business
// services behind it.
package gateway

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sparkmatch/sparkmatch/internal/config"
	"github.com/sparkmatch/sparkmatch/internal/middleware"
	"github.com/sparkmatch/sparkmatch/internal/tracing"
	"github.com/sparkmatch/sparkmatch/pkg/envelope"
)

// Proxy timeouts: 30s total, 10s connect, for every forwarded request.
const (
	totalTimeout   = 30 * time.Second
	connectTimeout = 10 * time.Second
)

// route maps one advertised prefix onto a downstream target.
type route struct {
	prefix  string
	target  string                   // downstream base URL
	rewrite func(path string) string // full inbound path -> downstream path
	service string                   // logical name, used in /health route map
}

// Gateway routes versioned external traffic to the downstream services.
type Gateway struct {
	routes []route
	client *http.Client
	cfg    *config.Config
}

// New builds the gateway against the configured downstream URLs.
func New(cfg *config.Config) *Gateway {
	g := &Gateway{
		cfg: cfg,
		client: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
			// Redirects from downstreams pass through untouched.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	g.routes = g.buildRoutes()
	return g
}

// stripV1 drops the /v1 prefix, preserving the root when nothing remains.
func stripV1(path string) string {
	rest := strings.TrimPrefix(path, "/v1")
	if rest == "" {
		return "/"
	}
	return rest
}

// replaceSegment rewrites /api/v1/<from>... to <to>...
func replaceSegment(from, to string) func(string) string {
	prefix := "/api/v1/" + from
	return func(path string) string {
		rest := strings.TrimPrefix(path, prefix)
		if rest == "" {
			return to
		}
		return to + rest
	}
}

// keepSegment rewrites /api/v1/<seg>... to <mount>/<seg>...
func keepSegment(seg, mount string) func(string) string {
	prefix := "/api/v1/" + seg
	return func(path string) string {
		return mount + "/" + seg + strings.TrimPrefix(path, prefix)
	}
}

func (g *Gateway) buildRoutes() []route {
	s := g.cfg.Services

	routes := []route{}

	// Versioned /v1 surface: strip the version prefix, forward the rest.
	for _, seg := range []struct {
		name, target, service string
	}{
		{"auth", s.Auth, "auth"},
		{"profiles", s.Profile, "profiles"},
		{"profile", s.Profile, "profile"},
		{"discovery", s.Discovery, "discovery"},
		{"media", s.Media, "media"},
		{"chat", s.Chat, "chat"},
		{"admin", s.Admin, "admin"},
		{"notifications", s.Notification, "notifications"},
	} {
		routes = append(routes, route{
			prefix:  "/v1/" + seg.name,
			target:  seg.target,
			rewrite: stripV1,
			service: seg.service,
		})
	}

	// /api/v1 compatibility surface.
	routes = append(routes,
		route{prefix: "/api/v1/auth", target: s.Auth, rewrite: replaceSegment("auth", "/auth"), service: "auth"},
		route{prefix: "/api/v1/profiles", target: s.Profile, rewrite: replaceSegment("profiles", "/profiles"), service: "profiles"},
		route{prefix: "/api/v1/profile", target: s.Profile, rewrite: replaceSegment("profile", "/profiles"), service: "profile"},
		route{prefix: "/api/v1/discover", target: s.Discovery, rewrite: keepSegment("discover", "/discovery"), service: "discovery"},
		route{prefix: "/api/v1/like", target: s.Discovery, rewrite: keepSegment("like", "/discovery"), service: "discovery"},
		route{prefix: "/api/v1/pass", target: s.Discovery, rewrite: keepSegment("pass", "/discovery"), service: "discovery"},
		route{prefix: "/api/v1/matches", target: s.Discovery, rewrite: keepSegment("matches", "/discovery"), service: "discovery"},
		route{prefix: "/api/v1/favorites", target: s.Discovery, rewrite: keepSegment("favorites", "/discovery"), service: "discovery"},
		route{prefix: "/api/v1/photos", target: s.Media, rewrite: replaceSegment("photos", "/media"), service: "media"},
		route{prefix: "/api/v1/notifications", target: s.Notification, rewrite: replaceSegment("notifications", "/notifications"), service: "notifications"},
		route{prefix: "/api/v1/admin", target: s.Admin, rewrite: replaceSegment("admin", "/admin-panel"), service: "admin"},
	)
	return routes
}

// legacyPrefixes are the unversioned paths that 301 onto /v1.
var legacyPrefixes = []string{
	"/auth", "/profiles", "/profile", "/discovery", "/media",
	"/chat", "/admin", "/notifications",
}

// Handler returns the gateway's HTTP surface with CORS and the
// operational endpoints mounted.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	origin := g.cfg.CORSOrigin
	if origin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{origin},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-ID", "X-Trace-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", g.healthHandler)
	r.Get("/api/health", g.healthHandler)
	r.NotFound(g.dispatch)

	return middleware.Chain(r,
		middleware.ErrorHandler("api-gateway"),
		middleware.Tracing("api-gateway"),
		middleware.Correlation(),
		middleware.RequestLogging("api-gateway"),
		middleware.Metrics("api-gateway"),
	)
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	routeMap := make(map[string]string, len(g.routes))
	for _, rt := range g.routes {
		routeMap[rt.prefix] = rt.service
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"service": "api-gateway",
		"routes":  routeMap,
	})
}

// dispatch matches the route table, handles legacy redirects, and
// forwards. Everything else is 404.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	for _, rt := range g.routes {
		if path == rt.prefix || strings.HasPrefix(path, rt.prefix+"/") {
			g.forward(w, r, rt)
			return
		}
	}

	// Unversioned /api/* redirects to /api/v1/*.
	if strings.HasPrefix(path, "/api/") && !strings.HasPrefix(path, "/api/v1/") && path != "/api/v1" {
		redirect(w, r, "/api/v1"+strings.TrimPrefix(path, "/api"))
		return
	}

	// Unversioned legacy paths redirect to /v1/*.
	for _, prefix := range legacyPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			redirect(w, r, "/v1"+path)
			return
		}
	}

	http.NotFound(w, r)
}

func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if r.URL.RawQuery != "" {
		location += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, location, http.StatusMovedPermanently)
}

// hop-by-hop headers dropped on forward and on the way back.
var (
	dropOnForward = []string{"Host", "Connection"}
	dropOnReturn  = []string{"Transfer-Encoding", "Connection"}
)

// forward proxies the request to the routed downstream. Any transport
// failure maps to 503 {"error":"Service unavailable"}; the gateway
// performs no retry.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, rt route) {
	downstreamPath := rt.rewrite(r.URL.Path)
	target := rt.target + downstreamPath
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		serviceUnavailable(w)
		return
	}

	for k, vs := range r.Header {
		if isDropped(k, dropOnForward) {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// Originate correlation if the client did not send one; mirror the
	// gateway's trace context downstream.
	if req.Header.Get(middleware.HeaderCorrelationID) == "" {
		if id := envelope.CorrelationID(r.Context()); id != "" {
			req.Header.Set(middleware.HeaderCorrelationID, id)
		} else {
			req.Header.Set(middleware.HeaderCorrelationID, uuid.NewString())
		}
	}
	if env := envelope.Get(r.Context()); env != nil {
		child := tracing.Context{TraceID: env.TraceID, SpanID: env.SpanID, ParentSpanID: env.ParentSpanID}.Child()
		child.Inject(req.Header)
		env.RouteTarget = rt.service
	}

	resp, err := g.client.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("target", rt.service).
			Str("path", downstreamPath).
			Msg("downstream call failed")
		serviceUnavailable(w)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		if isDropped(k, dropOnReturn) {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func serviceUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"error": "Service unavailable"})
}

func isDropped(header string, dropped []string) bool {
	for _, d := range dropped {
		if strings.EqualFold(header, d) {
			return true
		}
	}
	return false
}
