package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/deals"
	"dealdesk.health/internal/obs"
	"dealdesk.health/internal/stream"
)

// ReadyProbe reports readiness, pinging the database when one is attached.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the deal pipeline and its authorization core.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	deals    deals.Service
	resolver *authz.Resolver
	accounts auth.AccountStore
	stream   *stream.Stream

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, svc deals.Service, dir authz.Directory, accounts auth.AccountStore, events *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		deals:      svc,
		resolver:   authz.NewResolver(dir),
		accounts:   accounts,
		stream:     events,
		rateBurst:  40,
		ratePerSec: 20,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session + caller introspection
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/me/permissions", a.handleMyPermissions)

	// deal pipeline
	a.mux.HandleFunc("/v1/deals", a.handleDealsCollection)
	a.mux.HandleFunc("/v1/deals/", a.handleDealResource)

	// role management
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// live deal events (SSE)
	a.mux.HandleFunc("/v1/events", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux. Authentication runs
// innermost so every earlier layer sees unauthenticated traffic uniformly.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
