// Package api exposes the jobq engine over HTTP with echo.
//
// Every route under /v1 requires an Identity attached by an authenticator
// middleware (see SetIdentity and WithAuthenticator).
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/xraph/jobq/engine"
	"github.com/xraph/jobq/pagination"
)

// API wires the HTTP handlers for one Engine.
type API struct {
	eng           *engine.Engine
	logger        *slog.Logger
	policy        pagination.Policy
	authenticator echo.MiddlewareFunc
	serviceName   string
}

// Option configures an API.
type Option func(*API)

// WithPaginationPolicy selects how invalid page/limit values are handled.
func WithPaginationPolicy(p pagination.Policy) Option {
	return func(a *API) { a.policy = p }
}

// WithAuthenticator installs the middleware that resolves the caller and
// calls SetIdentity. It runs before RequireIdentity.
func WithAuthenticator(mw echo.MiddlewareFunc) Option {
	return func(a *API) { a.authenticator = mw }
}

// WithServiceName sets the server name reported on request spans.
func WithServiceName(name string) Option {
	return func(a *API) { a.serviceName = name }
}

// New creates an API for eng.
func New(eng *engine.Engine, logger *slog.Logger, opts ...Option) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{eng: eng, logger: logger, policy: pagination.PolicyCoerce, serviceName: "jobq"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Echo returns a configured echo instance with all routes registered.
func (a *API) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler(a.logger)
	e.Use(otelecho.Middleware(a.serviceName))
	a.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers the /v1 routes on e.
func (a *API) RegisterRoutes(e *echo.Echo) {
	mws := []echo.MiddlewareFunc{}
	if a.authenticator != nil {
		mws = append(mws, a.authenticator)
	}
	mws = append(mws, RequireIdentity)
	g := e.Group("/v1", mws...)

	g.POST("/jobs", a.enqueueJob)
	g.GET("/jobs", a.listJobs)
	g.GET("/jobs/:id", a.getJob)

	g.GET("/stats", a.stats)

	g.GET("/dlq", a.listDLQ)
	g.DELETE("/dlq", a.purgeDLQ)
	g.GET("/dlq/:id", a.getDLQ)
	g.POST("/dlq/:id/replay", a.replayDLQ)
}
