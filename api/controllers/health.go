package controllers

import (
	"net/http"

	"github.com/stagepass/checkout-engine/api/responses"
	"github.com/stagepass/checkout-engine/pkg/config"
	"github.com/stagepass/checkout-engine/pkg/logger"
	"github.com/stagepass/checkout-engine/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StagePass-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StagePass-Env", cfg.App.Env)

		checks := map[string]string{"redis": "ok"}
		healthy := true
		if redisPinger != nil {
			if err := redisPinger.Ping(r.Context()); err != nil {
				checks["redis"] = "unreachable"
				healthy = false
				if logg != nil {
					logg.Error(r.Context(), "readiness: redis ping failed", err)
				}
			}
		} else {
			checks["redis"] = "not configured"
		}

		status := http.StatusOK
		state := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}
