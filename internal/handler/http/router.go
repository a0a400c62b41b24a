package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront-shipping/internal/service"
	"github.com/utafrali/storefront-shipping/pkg/health"
	"github.com/utafrali/storefront-shipping/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "shipping"

// RouterConfig holds the optional parts of the router.
type RouterConfig struct {
	CORS middleware.CORSConfig
	// TokenValidator enables bearer authentication. When nil the caller's
	// identity is taken from the gateway's X-User-ID header.
	TokenValidator middleware.TokenValidator
}

// NewRouter creates a chi router with all shipping service routes registered.
func NewRouter(
	shippingService *service.ShippingService,
	committer *service.Committer,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	shippingHandler := NewShippingHandler(shippingService, committer, logger)

	r.Route("/api/v1/shipping", func(r chi.Router) {
		r.Use(middleware.NoStore)
		if cfg.TokenValidator != nil {
			r.Use(middleware.Auth(cfg.TokenValidator))
		} else {
			r.Use(middleware.GatewayIdentity)
		}
		r.Use(middleware.RequestLogger(logger))
		r.Use(ContentTypeJSON)

		r.Post("/sessions", shippingHandler.StartSession)
		r.Get("/sessions/{id}", shippingHandler.GetSession)
		r.Put("/sessions/{id}/address", shippingHandler.SetAddressText)
		r.Put("/sessions/{id}/phone", shippingHandler.SetPhone)
		r.Post("/sessions/{id}/select", shippingHandler.SelectAddress)
		r.Post("/sessions/{id}/pin", shippingHandler.PinLocation)
		r.Post("/sessions/{id}/locate", shippingHandler.Locate)
		r.Post("/sessions/{id}/submit", shippingHandler.Submit)

		r.Get("/addresses", shippingHandler.ListAddresses)
		r.Delete("/addresses/{id}", shippingHandler.DeleteAddress)
	})

	return r
}
