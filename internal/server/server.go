// Package server exposes the upload pipeline over HTTP: the upload
// endpoint, static download routes for archives and manifests, and a few
// informational endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OTADrop/internal/config"
	"github.com/dharsanguruparan/OTADrop/internal/metrics"
	"github.com/dharsanguruparan/OTADrop/internal/model"
	"github.com/dharsanguruparan/OTADrop/internal/storage"
	"github.com/dharsanguruparan/OTADrop/internal/upload"
)

const (
	apiName    = "IPA Processing API"
	apiVersion = "1.0"
	// multipartOverhead is allowed on top of the archive ceiling for part
	// headers and boundaries.
	multipartOverhead = 1 << 20
)

// Server hosts HTTP handlers for OTADrop.
type Server struct {
	cfg     *config.Config
	orch    *upload.Orchestrator
	store   storage.Store
	metrics metrics.Metrics
	promh   http.Handler
	log     *zap.Logger
	now     func() time.Time
}

// New creates a configured server. prom may be nil, in which case no
// /metrics route is registered.
func New(cfg *config.Config, orch *upload.Orchestrator, store storage.Store, prom *metrics.Prom, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		orch:    orch,
		store:   store,
		metrics: metrics.Noop{},
		log:     log,
		now:     time.Now,
	}
	if prom != nil {
		s.metrics = prom
		s.promh = prom.Handler()
	}
	return s
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.Info("listening", zap.String("address", s.cfg.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/upload", s.handleUpload)
	r.Get(upload.ArchivePath+"{filename}", s.serveArtifact(storage.Archives, "application/octet-stream"))
	r.Get(upload.ManifestPath+"{filename}", s.serveArtifact(storage.Manifests, "application/xml"))
	if s.promh != nil {
		r.Method(http.MethodGet, "/metrics", s.promh)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":        apiName,
		"version":     apiVersion,
		"description": "API for processing IPA files and generating itms-services URLs",
		"endpoints": map[string]string{
			"upload": "/api/upload",
			"status": "/api/status",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "running",
		"timestamp": s.now().Format(time.RFC3339),
		"version":   apiVersion,
	})
}

type uploadResponse struct {
	Success     bool              `json:"success"`
	ID          string            `json:"id"`
	Metadata    model.AppMetadata `json:"metadata"`
	ITMSURL     string            `json:"itms_url"`
	ManifestURL string            `json:"manifest_url"`
	ArchiveURL  string            `json:"archive_url"`
	// IPAURL repeats ArchiveURL for clients written against the field name
	// used by earlier releases.
	IPAURL string `json:"ipa_url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.orch.Options().MaxArchiveBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.rejectUpload(w, upload.BadInput, http.StatusBadRequest, "No file provided")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.rejectUpload(w, upload.BadInput, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
		case errors.Is(err, io.EOF):
			s.rejectUpload(w, upload.BadInput, http.StatusBadRequest, "No file provided")
		default:
			s.rejectUpload(w, upload.BadInput, http.StatusBadRequest, "Failed to read upload")
		}
		return
	}
	defer part.Close()

	res, err := s.orch.Handle(r.Context(), upload.Upload{Filename: part.FileName(), Body: part}, s.baseURL(r))
	if err != nil {
		status, msg := s.describe(err)
		s.log.Warn("upload failed", zap.Int("status", status), zap.Error(err))
		s.rejectUpload(w, upload.KindOf(err), status, msg)
		return
	}
	s.metrics.IncUploads("success")
	respondJSON(w, http.StatusOK, uploadResponse{
		Success:     true,
		ID:          res.ID,
		Metadata:    res.Metadata,
		ITMSURL:     res.InstallURL,
		ManifestURL: res.ManifestURL,
		ArchiveURL:  res.ArchiveURL,
		IPAURL:      res.ArchiveURL,
	})
}

func (s *Server) rejectUpload(w http.ResponseWriter, kind upload.Kind, status int, msg string) {
	s.metrics.IncUploads(kind.String())
	respondError(w, status, msg)
}

// describe maps an orchestrator error onto a status code and message.
func (s *Server) describe(err error) (int, string) {
	switch upload.KindOf(err) {
	case upload.BadInput:
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			return http.StatusRequestEntityTooLarge, s.tooLargeMessage()
		case errors.Is(err, upload.ErrNoFilename):
			return http.StatusBadRequest, "No file selected"
		case errors.Is(err, upload.ErrFileType):
			return http.StatusBadRequest, "Invalid file type. Only " + s.extensionList() + " files are allowed"
		case errors.Is(err, upload.ErrNoFile):
			return http.StatusBadRequest, "No file provided"
		default:
			return http.StatusBadRequest, err.Error()
		}
	case upload.InvalidArchive:
		return http.StatusBadRequest, "Invalid IPA file: " + err.Error()
	default:
		return http.StatusInternalServerError, "Server error: " + err.Error()
	}
}

func (s *Server) tooLargeMessage() string {
	return "File too large. Maximum size is " + humanize.IBytes(uint64(s.orch.Options().MaxArchiveBytes))
}

func (s *Server) extensionList() string {
	exts := s.orch.Options().AllowedExtensions
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, "."+ext)
	}
	return strings.Join(names, ", ")
}

func (s *Server) serveArtifact(ns storage.Namespace, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		data, err := s.store.Read(r.Context(), ns, name)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
				respondError(w, http.StatusNotFound, "File not found")
				return
			}
			s.log.Error("read artifact", zap.String("namespace", string(ns)), zap.String("name", name), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
	}
}

// baseURL returns the scheme and host artifacts are published under.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error("panic serving request", zap.String("path", r.URL.Path), zap.Any("panic", rec), zap.Stack("stack"))
				respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
