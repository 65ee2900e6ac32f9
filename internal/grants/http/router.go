package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	_ "github.com/aussiebroadwan/grantsweep/api/grantsweep" // Swagger docs
	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/pkg/httpx"
	"github.com/aussiebroadwan/grantsweep/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupScheduler is the slice of *service.Scheduler the ops endpoints use.
type CleanupScheduler interface {
	State() service.State
	LastReport() (service.PassReport, bool)
	TriggerNow(ctx context.Context) (service.PassReport, bool)
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store Pinger

	// Scheduler is nil when cleanup is disabled.
	Scheduler CleanupScheduler

	// TrustedProxies lists the peers whose forwarding headers identify the
	// client for rate limiting. Empty means RemoteAddr only.
	TrustedProxies []netip.Prefix
}

func NewRouter(buildVersion string, st Pinger, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSystem()
	r.registerCleanup()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			grantsweep Operations API
//	@version		0.1.0
//	@description	Operations surface of the expired grant and device code sweeper.
//	@description
//	@description	Exposes liveness and readiness checks, the cleanup scheduler status and a manual cleanup trigger.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/grantsweep
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.HealthLimit, r.TrustedProxies...),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Scheduler),
			httpx.RateLimitByIP(httpx.HealthLimit, r.TrustedProxies...),
		),
	)
}

func (r *Router) registerCleanup() {
	h := &CleanupHandler{Scheduler: r.Scheduler}

	r.Mux.Handle("GET /v1/cleanup/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.RateLimitByIP(httpx.HealthLimit, r.TrustedProxies...),
		),
	)

	// Manual passes hit the store hard, so they get the strict profile.
	r.Mux.Handle("POST /v1/cleanup/run",
		httpx.Chain(http.HandlerFunc(h.HandleRun),
			httpx.RateLimitByIP(httpx.OpsLimit, r.TrustedProxies...),
		),
	)
}
