//go:build !js && !wasm

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/himanishpuri/GazeCaptcha/internal/videoproxy"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
	"github.com/himanishpuri/GazeCaptcha/pkg/logger"
	"go.uber.org/zap"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service gazecaptcha.Service
	config  *ServerConfig
	log     *logger.Logger
	proxy   *videoproxy.Proxy
	live    http.Handler
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	DBDriver       string
	StaticDir      string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service gazecaptcha.Service, config *ServerConfig, log *logger.Logger, proxy *videoproxy.Proxy, live http.Handler) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	if proxy == nil {
		proxy = videoproxy.New(log.Zap().Named("proxy"))
	}
	return &Server{
		service: service,
		config:  config,
		log:     log,
		proxy:   proxy,
		live:    live,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "GazeCaptcha API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":          "GET /health",
			"nextChallenge":   "GET /api/video-data",
			"video":           "GET /api/video/{id}",
			"challenges":      "GET /api/challenges",
			"addChallenge":    "POST /api/challenges",
			"getChallenge":    "GET /api/challenges/{id}",
			"deleteChallenge": "DELETE /api/challenges/{id}",
			"verify":          "POST /api/challenges/{id}/verify",
			"recordings":      "GET /api/challenges/{id}/recordings",
			"classify":        "POST /api/uploads/classify",
			"export":          "POST /api/export",
			"matcher":         "GET /api/matcher",
			"live":            "GET /ws/session",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleVideoData handles GET /api/video-data
func (s *Server) handleVideoData(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.NextChallenge(r.Context())
	if errors.Is(err, gazecaptcha.ErrNoChallenge) {
		s.respondError(w, http.StatusNotFound, "No challenges available")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to load next challenge: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load challenge")
		return
	}
	s.respondJSON(w, http.StatusOK, payload)
}

// handleVideo handles GET /api/video/{id}
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, err := s.service.GetChallenge(r.Context(), id)
	if errors.Is(err, gazecaptcha.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Challenge not found")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to look up challenge %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to look up challenge")
		return
	}

	if err := s.proxy.Serve(w, r, ch.VideoURL); err != nil {
		s.log.Errorf("Video proxy error for challenge %s: %v", id, err)
		s.respondError(w, http.StatusBadGateway, "Video proxy error")
	}
}

// handleListChallenges handles GET /api/challenges
func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.service.ListChallenges(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list challenges: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve challenges")
		return
	}

	dtos := make([]ChallengeDTO, len(challenges))
	for i, ch := range challenges {
		dtos[i] = toChallengeDTO(ch)
	}
	s.respondJSON(w, http.StatusOK, ListChallengesResponse{Challenges: dtos, Count: len(dtos)})
}

// handleCreateChallenge handles POST /api/challenges
func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req CreateChallengeRequest
	if !s.decodeJSON(w, r, 1<<20, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.service.AddChallenge(r.Context(), req.Question, req.VideoURL, req.Answer)
	if err != nil {
		s.log.Warnf("Failed to add challenge: %v", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, CreateChallengeResponse{
		Message: "Challenge created successfully",
		ID:      id,
	})
}

// handleGetChallenge handles GET /api/challenges/{id}
func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, err := s.service.GetChallenge(r.Context(), id)
	if err != nil {
		s.log.Warnf("Challenge not found: %s", id)
		s.respondError(w, http.StatusNotFound, "Challenge "+id+" not found")
		return
	}
	s.respondJSON(w, http.StatusOK, toChallengeDTO(ch))
}

// handleDeleteChallenge handles DELETE /api/challenges/{id}
func (s *Server) handleDeleteChallenge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.service.DeleteChallenge(r.Context(), id)
	if errors.Is(err, gazecaptcha.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Challenge "+id+" not found")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to delete challenge %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete challenge")
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteChallengeResponse{
		Message: "Challenge deleted successfully",
		ID:      id,
	})
}

// handleVerify handles POST /api/challenges/{id}/verify. With ?mode=clicks
// the gaze stream is ignored and only click positions and times are checked.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req VerifyRequest
	if !s.decodeJSON(w, r, 16<<20, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var verdict model.Verdict
	var err error
	if r.URL.Query().Get("mode") == "clicks" {
		verdict, err = s.service.VerifyClicksOnly(r.Context(), id, req.Clicks)
	} else {
		verdict, err = s.service.Verify(r.Context(), id, req.Gaze, req.Clicks)
	}
	if errors.Is(err, gazecaptcha.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Challenge "+id+" not found")
		return
	}
	if err != nil {
		s.log.Errorf("Verification of challenge %s failed: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Verification failed")
		return
	}
	s.respondJSON(w, http.StatusOK, VerifyResponse{Passed: verdict.Passed})
}

// handleRecordings handles GET /api/challenges/{id}/recordings
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recs, err := s.service.Recordings(r.Context(), id)
	if err != nil {
		s.log.Errorf("Failed to list recordings for %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve recordings")
		return
	}

	dtos := make([]RecordingDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = RecordingDTO{
			ID:         rec.ID,
			GazeCount:  len(rec.Gaze),
			ClickCount: len(rec.Clicks),
			CreatedAt:  rec.CreatedAt,
		}
	}
	s.respondJSON(w, http.StatusOK, ListRecordingsResponse{Recordings: dtos, Count: len(dtos)})
}

// handleClassify handles POST /api/uploads/classify (multipart, field "files")
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "No files provided")
		return
	}

	files := make([]upload.File, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Failed to read "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Failed to read "+fh.Filename)
			return
		}
		files = append(files, upload.File{Name: fh.Filename, Data: data})
		names = append(names, fh.Filename)
	}

	res := s.service.ClassifyUploads(files)
	status := http.StatusOK
	if res.Empty() {
		status = http.StatusUnprocessableEntity
	}
	s.respondJSON(w, status, toClassifyResponse(names, res))
}

// handleExport handles POST /api/export?mode=pair|timestamped|combined
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	mode, err := upload.ParseExportMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ExportRequest
	if !s.decodeJSON(w, r, 16<<20, &req) {
		return
	}

	files, err := upload.Export(req.Gaze, req.Clicks, mode, time.Now())
	if err != nil {
		s.log.Errorf("Export failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Export failed")
		return
	}
	resp := ExportResponse{Files: make([]ExportFileDTO, len(files))}
	for i, f := range files {
		resp.Files[i] = ExportFileDTO{Name: f.Name, Content: string(f.Data)}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleMatcher handles GET /api/matcher
func (s *Server) handleMatcher(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.MatcherParams())
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		s.respondError(w, http.StatusNotFound, "Live sessions are disabled")
		return
	}
	s.live.ServeHTTP(w, r)
}

// requestLogger logs each request once it has been served.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapResponseWriter(w, r)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", r.RemoteAddr),
			}

			switch {
			case status >= 500:
				log.Error("Server error", fields...)
			case status >= 400:
				log.Warn("Client error", fields...)
			default:
				log.Debug("Request processed", fields...)
			}
		})
	}
}
