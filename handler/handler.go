// Package handler provides the HTTP handlers for the resource server.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/stevemurr/simple-resource-server/logging"
	"github.com/stevemurr/simple-resource-server/metrics"
	"github.com/stevemurr/simple-resource-server/store"
)

// BasePaths are the prefixes the resource routes are mounted under.
// /api/posts keeps clients of the legacy posts API working.
var BasePaths = []string{"/resources", "/api/posts"}

const defaultMaxBodyBytes = 1 << 20

// Options configures a Handler. The zero value is usable.
type Options struct {
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store        store.Store
	logger       *zap.Logger
	metrics      *metrics.Collector
	maxBodyBytes int64
	router       chi.Router
}

// New creates a Handler and wires up all routes.
func New(s store.Store, opts Options) *Handler {
	h := &Handler{
		store:        s,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		maxBodyBytes: opts.MaxBodyBytes,
		router:       chi.NewRouter(),
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxBodyBytes
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h.routes(origins)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes(origins []string) {
	r := h.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.logger))
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-Match", "X-Request-ID"},
		ExposedHeaders: []string{"ETag", "Location", "X-Request-ID"},
		// Credentials only for an explicit origin list, never for "*".
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}))

	// Health / status
	r.Get("/", h.root)
	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	for _, base := range BasePaths {
		r.Route(base, func(r chi.Router) {
			r.Get("/", h.listResources)
			r.Post("/", h.createResource)
			r.Get("/{id}", h.getResource)
			r.Put("/{id}", h.updateResource)
			r.Patch("/{id}", h.updateResource)
			r.Delete("/{id}", h.deleteResource)
		})
	}
}

// ---------- helpers ----------

type errorResponse struct {
	Error         string   `json:"error"`
	Detail        string   `json:"detail,omitempty"`
	MissingFields []string `json:"missingFields,omitempty"`
	ID            uint64   `json:"id,omitempty"`
	Expected      uint64   `json:"expected,omitempty"`
	Actual        uint64   `json:"actual,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Detail: msg})
}

func writeRecord(w http.ResponseWriter, status int, rec store.Record) {
	w.Header().Set("ETag", etag(rec.Version))
	writeJSON(w, status, rec)
}

// writeStoreError translates a store error into its HTTP response.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *store.ValidationError
		ne *store.NotFoundError
		ce *store.VersionConflictError
	)
	var fe *store.InvalidFieldError
	resp := errorResponse{Detail: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = ve.StatusCode()
		resp.MissingFields = ve.MissingFields
	case errors.As(err, &fe):
		status = fe.StatusCode()
	case errors.As(err, &ne):
		status = ne.StatusCode()
		resp.ID = ne.ID
	case errors.As(err, &ce):
		status = ce.StatusCode()
		resp.ID = ce.ID
		resp.Expected = ce.Expected
		resp.Actual = ce.Actual
		w.Header().Set("ETag", etag(ce.Actual))
	}
	resp.Error = http.StatusText(status)

	if status >= http.StatusInternalServerError {
		h.logger.Error("store operation failed",
			zap.String("path", r.URL.Path),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("store operation rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

// readFields decodes a body of at most maxBodyBytes holding exactly one
// JSON object. It returns the HTTP status to use when decoding fails.
func (h *Handler) readFields(w http.ResponseWriter, r *http.Request) (map[string]any, int, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, decodeStatus(err), fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, http.StatusBadRequest, errors.New("request body must hold a single JSON object")
		}
		return nil, decodeStatus(err), fmt.Errorf("invalid JSON after object: %w", err)
	}
	if fields == nil {
		return nil, http.StatusBadRequest, errors.New("request body must be a JSON object")
	}
	return fields, 0, nil
}

func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// parseID accepts positive decimal ids only.
func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// expectedVersion reads the If-Match header. No header or "*" means any version.
func expectedVersion(r *http.Request) (uint64, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" || v == "*" {
		return store.AnyVersion, nil
	}
	v = strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid If-Match header %q", r.Header.Get("If-Match"))
	}
	return n, nil
}

func etag(version uint64) string {
	return `"` + strconv.FormatUint(version, 10) + `"`
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "Simple Resource Server",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- resource CRUD ----------

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.List()
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) createResource(w http.ResponseWriter, r *http.Request) {
	fields, status, err := h.readFields(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	rec, err := h.store.Create(fields)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+strconv.FormatUint(rec.ID, 10))
	writeRecord(w, http.StatusCreated, rec)
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, ok := parseID(raw)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record %q not found", raw))
		return
	}
	rec, err := h.store.Get(id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

func (h *Handler) updateResource(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, ok := parseID(raw)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record %q not found", raw))
		return
	}
	expected, err := expectedVersion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, status, err := h.readFields(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	rec, err := h.store.Update(id, expected, patch)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

func (h *Handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, ok := parseID(raw)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record %q not found", raw))
		return
	}
	if err := h.store.Delete(id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
