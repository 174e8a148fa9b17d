//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// setupRoutes registers all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log.Zap().Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(s.config.AllowedOrigins)))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/video-data", s.handleVideoData)
		r.Get("/video/{id}", s.handleVideo)

		r.Route("/challenges", func(r chi.Router) {
			r.Get("/", s.handleListChallenges)
			r.Post("/", s.handleCreateChallenge)
			r.Get("/{id}", s.handleGetChallenge)
			r.Delete("/{id}", s.handleDeleteChallenge)
			r.Post("/{id}/verify", s.handleVerify)
			r.Get("/{id}/recordings", s.handleRecordings)
		})

		r.Post("/uploads/classify", s.handleClassify)
		r.Post("/export", s.handleExport)
		r.Get("/matcher", s.handleMatcher)
	})

	r.Get("/ws/session", s.handleLive)

	if dir := s.config.StaticDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			s.log.Warnf("Static directory %s not usable: %v", dir, err)
			r.Get("/", s.handleRoot)
		}
	} else {
		r.Get("/", s.handleRoot)
	}

	return r
}

func corsOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "Range", "If-Range"},
		ExposedHeaders:   []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		AllowCredentials: !allowAll,
		MaxAge:           3600,
	}
}

func wrapResponseWriter(w http.ResponseWriter, r *http.Request) middleware.WrapResponseWriter {
	return middleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("GazeCaptcha server starting on %s", s.config.Addr)
	s.log.Infof("   Database driver: %s", s.config.DBDriver)
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	if s.config.StaticDir != "" {
		s.log.Infof("   Static files: %s", s.config.StaticDir)
	}
	s.log.Infof("Endpoints:")
	s.log.Infof("   GET    /health                          - Health check")
	s.log.Infof("   GET    /api/video-data                  - Next challenge")
	s.log.Infof("   GET    /api/video/{id}                  - Challenge video (Range proxy)")
	s.log.Infof("   GET    /api/challenges                  - List challenges")
	s.log.Infof("   POST   /api/challenges                  - Add challenge")
	s.log.Infof("   GET    /api/challenges/{id}             - Get challenge")
	s.log.Infof("   DELETE /api/challenges/{id}             - Delete challenge")
	s.log.Infof("   POST   /api/challenges/{id}/verify      - Verify gaze and clicks")
	s.log.Infof("   GET    /api/challenges/{id}/recordings  - Stored passed attempts")
	s.log.Infof("   POST   /api/uploads/classify            - Classify uploaded streams")
	s.log.Infof("   POST   /api/export                      - Encode streams for download")
	s.log.Infof("   GET    /ws/session                      - Live session")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Infof("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
