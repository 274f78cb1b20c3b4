package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/device", func(r chi.Router) {
			r.Get("/id", s.handleShowID)
			r.Get("/cmd", s.handleShowCmd)
			r.Get("/count", s.handleShowCount)
			r.Get("/stats", s.handleStats)
			r.Get("/history", s.handleHistory)

			r.Group(func(r chi.Router) {
				r.Use(s.requireWriter)
				r.Put("/cmd", s.handleStoreCmd)
				r.Post("/interrupt", s.handleInterrupt)
			})
		})
	})

	return r
}
