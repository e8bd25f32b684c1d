package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"

	_ "github.com/aussiebroadwan/gatekeeper/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware
	rateLimit   []httpx.Middleware

	verifier     jwtx.Verifier
	accountant   *ratelimit.Accountant
	clientIP     httpx.KeyExtractor
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// Now is the clock used for token checks and rate limit windows.
	Now func() time.Time

	store            store.Store // Optional: nil disables the audit checks
	LoginService     *service.LoginService
	DashboardService service.DashboardService
}

// NewRouter builds a router. accountant may be nil, which disables rate
// limiting and the counter store readiness check. trustProxy controls
// whether forwarding headers are believed when resolving the client IP.
func NewRouter(
	verifier jwtx.Verifier,
	accountant *ratelimit.Accountant,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	trustProxy bool,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		accountant:   accountant,
		clientIP:     httpx.IPKeyExtractor(trustProxy),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Now:          time.Now,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	// Rate limiting guards every route except the health probes,
	// which must keep answering while the counter store is down.
	if accountant != nil {
		r.rateLimit = []httpx.Middleware{
			httpx.RateLimitMiddleware(accountant, r.clientIP, r.now),
		}
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()

	r.Mux.Handle("/swagger/", r.limited(httpSwagger.Handler()))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatekeeper Authentication Service API
//	@version		0.1.0
//	@description	Username/password login issuing HS256 signed bearer tokens, plus a protected dashboard.
//	@description
//	@description				Every route is rate limited per client IP. Rejected requests get 429 with a Retry-After header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatekeeper
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// limited wraps h in the rate limit middleware.
func (r *Router) limited(h http.Handler) http.Handler {
	return httpx.Chain(h, r.rateLimit...)
}

func (r *Router) registerAuth() {
	login := &LoginHandler{
		LoginService: r.LoginService,
		ClientIP:     r.clientIP,
	}
	r.Mux.Handle("POST /api/auth/login", r.limited(login))

	// Rate limit before authn so invalid tokens still spend the budget.
	dashboard := &DashboardHandler{DashboardService: r.DashboardService}
	r.Mux.Handle("GET /api/auth/dashboard",
		r.limited(httpx.Chain(dashboard,
			httpx.AuthnMiddleware(r.verifier, r.now), // verify JWT (sig/iss/aud/exp)
		)),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.accountant))
}
