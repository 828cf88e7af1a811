package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dinsos-bot/internal/clock"
)

// maxBodyBytes caps webhook bodies; chat payloads are a few KB.
const maxBodyBytes = 1 << 20

// Register mounts the webhook on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook", h.ServeWebhook)
}

// ServeWebhook handles POST /webhook.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	// An unreadable body decodes as invalid input.
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	status, payload, correlationID := h.process(r.Context(), r.Header.Get, body)
	w.Header().Set(headerCorrelationID, correlationID)
	writeJSON(w, status, payload)
}

type pingResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// NewRouter builds the server-mode HTTP surface: the webhook, a liveness
// probe and the Prometheus scrape endpoint.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, clk clock.Clock) http.Handler {
	started := clk.Now()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h.Register(r)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, pingResponse{
			Status: "alive",
			Uptime: clk.Now().Sub(started).Round(time.Millisecond).Seconds(),
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
