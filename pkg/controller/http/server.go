package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/orthrus/pkg/usecase"
	"github.com/secmon-lab/orthrus/pkg/utils/logging"
)

type Server struct {
	router         *chi.Mux
	uc             *usecase.UseCases
	webhookHandler *WebhookHandler
	signingSecret  string
}

type Options func(*Server)

// WithWebhook mounts the signed event ingest endpoint. Without it the
// server only serves the mapping API.
func WithWebhook(handler *WebhookHandler, signingSecret string) Options {
	return func(s *Server) {
		s.webhookHandler = handler
		s.signingSecret = signingSecret
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	// Event ingest endpoint - no auth, uses signature verification
	if s.webhookHandler != nil {
		r.Route("/hooks/backend", func(r chi.Router) {
			r.Use(SignatureMiddleware(s.signingSecret))
			r.Post("/event", s.webhookHandler.ServeHTTP)
		})
	}

	// Mapping API
	r.Route("/api", func(r chi.Router) {
		r.Post("/conversations", createConversationHandler(uc.Mapping))
		r.Get("/conversations/{conversationID}", getConversationHandler(uc.Mapping))
		r.Get("/conversations/{conversationID}/transitions", listTransitionsHandler(uc.Sync))
		r.Get("/accounts/{accountKey}/cases/{caseID}/conversation", getConversationByCaseHandler(uc.Mapping))
		r.Get("/participants/{participantID}/conversations", listConversationsByParticipantHandler(uc.Mapping))
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck // header already committed
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
