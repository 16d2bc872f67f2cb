package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig carries the HTTP settings of the API.
type ServerConfig struct {
	Port           string
	JWTSecret      string
	AdminAPIKey    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(cfg ServerConfig, handler *Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      Routes(cfg, handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Routes builds the API router.
func Routes(cfg ServerConfig, h *Handler) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(instrument)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.With(requireUser(cfg.JWTSecret)).Get("/ws", h.ServeLive)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(timeout))
			r.Use(requireUser(cfg.JWTSecret))

			r.Get("/snapshots", h.ListSnapshots)
			r.Post("/snapshots", h.UpsertSnapshot)
			r.Get("/snapshots/export.xlsx", h.ExportSnapshots)
			r.Get("/snapshots/date/{date}", h.GetSnapshotsForDate)
			r.Delete("/snapshots/{id}", h.DeleteSnapshot)

			r.Get("/accounts", h.ListAccounts)
			r.Post("/accounts", h.LinkAccount)
			r.Get("/accounts/{id}", h.GetAccount)
			r.Put("/accounts/{id}/balances", h.UpdateAccountBalances)
			r.Get("/accounts/{id}/snapshots", h.ListAccountSnapshots)

			r.Get("/dashboard/net-worth", h.GetNetWorth)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			r.Get("/crypto/{network}/{address}/balance", h.GetCryptoBalance)
			r.Get("/crypto/{network}/{address}/validate", h.ValidateCryptoAddress)
		})

		r.Group(func(r chi.Router) {
			if cfg.AdminAPIKey != "" {
				r.Use(requireAdmin(cfg.AdminAPIKey))
			}
			r.Post("/jobs/sync", h.RunSync)
			r.Post("/jobs/forward-fill", h.RunForwardFill)
		})
	})

	return router
}
