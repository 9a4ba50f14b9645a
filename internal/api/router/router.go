package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/saudelab/agenda/internal/http/handlers"
	httpmiddleware "github.com/saudelab/agenda/internal/http/middleware"
	"github.com/saudelab/agenda/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Agendas            *handlers.AgendasHandler
	Slots              *handlers.SlotsHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ReserveRateLimit caps reservation attempts per second per IP;
	// 0 disables the limiter.
	ReserveRateLimit int
	ReserveRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/agendas", func(r chi.Router) {
		if cfg.Agendas != nil {
			r.Post("/", cfg.Agendas.Create)
			r.Get("/", cfg.Agendas.List)
		}
		r.Route("/{agendaID}", func(r chi.Router) {
			if cfg.Agendas != nil {
				r.Get("/", cfg.Agendas.Get)
				r.Put("/", cfg.Agendas.Update)
				r.Delete("/", cfg.Agendas.Delete)
				r.Put("/config", cfg.Agendas.UpdateConfig)
				r.Post("/periods", cfg.Agendas.AddPeriod)
				r.Delete("/periods/{periodID}", cfg.Agendas.RemovePeriod)
				r.Post("/overrides", cfg.Agendas.AddOverride)
				r.Delete("/overrides/{overrideID}", cfg.Agendas.RemoveOverride)
				r.Post("/blocks", cfg.Agendas.AddBlock)
				r.Delete("/blocks/{blockID}", cfg.Agendas.RemoveBlock)
			}
			if cfg.Slots != nil {
				r.Get("/slots", cfg.Slots.ListSlots)
				r.Group(func(r chi.Router) {
					if cfg.ReserveRateLimit > 0 {
						r.Use(httpmiddleware.RateLimit(float64(cfg.ReserveRateLimit), cfg.ReserveRateBurst))
					}
					r.Post("/reservations", cfg.Slots.Reserve)
				})
			}
		})
	})
	if cfg.Slots != nil {
		r.Delete("/reservations/{token}", cfg.Slots.Release)
	}

	return r
}
