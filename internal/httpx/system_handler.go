package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/rabbit"
)

type SystemHandler struct {
	DB     *pgxpool.Pool
	Broker *rabbit.Client
	Repo   *orders.Repo
}

func (h *SystemHandler) Register(r *chi.Mux) {
	r.Get("/health", h.health)
	r.Get("/analytics", h.analytics)
}

// health reports per-service status so operators can tell which dependency
// is degraded.
func (h *SystemHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{}
	if err := h.DB.Ping(ctx); err != nil {
		services["postgres"] = "error: " + truncateErr(err)
	} else {
		services["postgres"] = "ok"
	}
	if err := h.Broker.Ping(); err != nil {
		services["rabbitmq"] = "error: " + truncateErr(err)
	} else {
		services["rabbitmq"] = "ok"
	}

	overall := "ok"
	for _, v := range services {
		if v != "ok" {
			overall = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": overall, "services": services})
}

func (h *SystemHandler) analytics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	a, err := h.Repo.Analytics(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func truncateErr(err error) string {
	s := err.Error()
	if len(s) > 80 {
		return s[:80]
	}
	return s
}
