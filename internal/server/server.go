// Package server exposes the price API over HTTP.
package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/oakcellar/pricewatch-cli/internal/store"
)

// Server wires the price API handlers onto a chi router.
type Server struct {
	store      store.Store
	adminToken string
	log        *zap.Logger
}

// New creates a Server. adminToken guards write endpoints; when empty,
// every write request is rejected.
func New(st store.Store, adminToken string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	return &Server{store: st, adminToken: adminToken, log: log}
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stores", s.handleListStores)
		r.Get("/stores/{storeKey}/prices", s.handleListStorePrices)
		r.Get("/priceChanges", s.handlePriceChanges)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/stores/{storeKey}/prices", s.handleSubmitPrices)
		})
	})

	return r
}
