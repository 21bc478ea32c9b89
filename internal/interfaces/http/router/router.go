package router

import (
	"fmt"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine        *gin.Engine
	apiVersion    string
	apiMiddleware []gin.HandlerFunc
	registrars    []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithAPIMiddleware adds middleware that runs only on the versioned API group
func WithAPIMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.apiMiddleware = append(r.apiMiddleware, mw...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.apiMiddleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// EngineOptions carries what the global middleware chain needs
type EngineOptions struct {
	App       config.AppConfig
	HTTP      config.HTTPConfig
	Telemetry config.TelemetryConfig
	Logger    *zap.Logger
	// Meter enables request metrics when set
	Meter metric.Meter
}

// NewEngine builds a gin engine with the global middleware chain. Order:
// request id, request logging, panic recovery, tracing, CORS, body limit,
// metrics, profiling labels.
func NewEngine(opts EngineOptions) (*gin.Engine, error) {
	if opts.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
	)
	if opts.Telemetry.Enabled {
		serviceName := opts.Telemetry.ServiceName
		if serviceName == "" {
			serviceName = opts.App.Name
		}
		engine.Use(middleware.Tracing(serviceName))
	}
	engine.Use(
		middleware.CORS(middleware.CORSConfig{
			AllowOrigins:  opts.HTTP.CORSAllowOrigins,
			AllowMethods:  opts.HTTP.CORSAllowMethods,
			AllowHeaders:  opts.HTTP.CORSAllowHeaders,
			ExposeHeaders: []string{middleware.RequestIDHeader},
		}),
		middleware.BodyLimit(opts.HTTP.MaxBodySize),
	)
	if opts.Meter != nil {
		metricsMW, err := middleware.HTTPMetrics(opts.Meter)
		if err != nil {
			return nil, fmt.Errorf("http metrics: %w", err)
		}
		engine.Use(metricsMW)
	}
	if opts.Telemetry.ProfilingEnabled {
		engine.Use(middleware.Profiling())
	}
	return engine, nil
}

// AuthMiddleware selects bearer token authentication when a verifier is
// configured and the X-Tenant-ID header otherwise. Span attributes are added
// once the tenant is known.
func AuthMiddleware(verifier middleware.TokenVerifier, log *zap.Logger) []gin.HandlerFunc {
	if verifier == nil {
		return []gin.HandlerFunc{middleware.HeaderTenant(), middleware.SpanAttributes()}
	}
	return []gin.HandlerFunc{middleware.JWTAuth(verifier, log), middleware.SpanAttributes()}
}
