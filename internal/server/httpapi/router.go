// Package httpapi exposes the record core as a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/retry"
	"github.com/dmitrijs2005/patterm/internal/server/access"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

const shutdownTimeout = 5 * time.Second

// Sessions is the part of the session manager the API needs.
type Sessions interface {
	IssueSession(ctx context.Context, userID, password string) (string, *models.Session, error)
	Validate(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, token string) error
}

type Server struct {
	address  string
	router   chi.Router
	handlers *Handlers
	logger   logging.Logger
}

func NewServer(address string, origins []string, l logging.Logger, gate *access.Gate, sessions Sessions, policy retry.Policy) *Server {
	s := &Server{
		address:  address,
		router:   chi.NewRouter(),
		logger:   l.With("module", "http_server"),
		handlers: NewHandlers(gate, sessions, policy, l),
	}

	s.setupMiddleware(origins)
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.handlers.IssueSession)
		r.Get("/sessions/current", s.handlers.ValidateSession)
		r.Delete("/sessions/current", s.handlers.RevokeSession)

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", s.handlers.CreateRecord)
			r.Get("/{id}", s.handlers.ReadRecord)
			r.Post("/{id}/appointments", s.handlers.AppendAppointment)
			r.Get("/{id}/consents", s.handlers.ListConsents)
			r.Put("/{id}/consents/{facility}", s.handlers.UpdateConsent)
			r.Post("/{id}/notes", s.handlers.AppendTreatmentNote)
		})

		r.Get("/audit/verify", s.handlers.VerifyAuditChain)
	})
}

// requestLogger logs every request at debug level with its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis and shuts down gracefully when ctx is
// done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
