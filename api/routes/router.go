package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagepass/checkout-engine/api/controllers"
	"github.com/stagepass/checkout-engine/api/middleware"
	"github.com/stagepass/checkout-engine/internal/checkout"
	"github.com/stagepass/checkout-engine/pkg/config"
	"github.com/stagepass/checkout-engine/pkg/logger"
	"github.com/stagepass/checkout-engine/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisPinger redis.Pinger,
	idemStore redis.IdempotencyStore,
	engine *checkout.Engine,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Checkout.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, redisPinger))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/checkout/sessions", func(r chi.Router) {
		r.Post("/", controllers.OpenSession(engine, logg))
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(middleware.Idempotency(idemStore, logg))
			r.Delete("/", controllers.CloseSession(engine, logg))
			r.Post("/inputs", controllers.ObserveInputs(engine, logg))
			r.Post("/lead", controllers.SubmitLead(engine, logg))
			r.Post("/payment", controllers.EnterPayment(engine, logg))
			r.Post("/confirm", controllers.ConfirmPayment(engine, logg))
		})
	})

	return r
}
