package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/calls", s.handleListCalls)
		v1.Get("/calls/count", s.handleCallCount)
		v1.Get("/calls/history", s.handleHistory)
		v1.Post("/calls/request", s.handleRequestCall)
		v1.Get("/calls/{callID}", s.handleGetCall)
		v1.Post("/calls/{callID}/escalate", s.handleEscalate)

		v1.Get("/units", s.handleListUnits)
		v1.Patch("/units/{unitID}/status", s.handleUnitStatus)

		v1.Post("/player/invoke", s.handleInvoke)
		v1.Post("/player/next", s.handleNext)
		v1.Post("/player/accept", s.handleAccept)
		v1.Post("/player/decline", s.handleDecline)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
