// Package handler provides the HTTP handlers for the document store.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stevemurr/flatjson/document"
	"github.com/stevemurr/flatjson/flat"
	"github.com/stevemurr/flatjson/match"
	"github.com/stevemurr/flatjson/search"
	"github.com/stevemurr/flatjson/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Handler holds the server dependencies and registers routes.
type Handler struct {
	manager *store.Manager
	backend store.Backend
	mux     *http.ServeMux
	metrics *metrics
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Handler and wires up all routes. backend receives snapshots.
func New(m *store.Manager, backend store.Backend, opts ...Option) *Handler {
	h := &Handler{
		manager: m,
		backend: backend,
		mux:     http.NewServeMux(),
		metrics: newMetrics(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.metrics.observe(r.Method, rec.status)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /metrics", h.serveMetrics)

	// --- Flat entries ---
	h.mux.HandleFunc("GET /entries", h.listEntries)
	// ?create=true stores a null under a missing key, so this GET can write.
	h.mux.HandleFunc("GET /entries/{key}", h.getEntry)
	h.mux.HandleFunc("PUT /entries/{key}", h.putEntry)
	h.mux.HandleFunc("DELETE /entries/{key}", h.deleteEntry)

	// --- Whole document ---
	h.mux.HandleFunc("GET /document", h.getDocument)
	h.mux.HandleFunc("PUT /document", h.initDocument)
	h.mux.HandleFunc("PATCH /document", h.updateDocument)

	// --- Search and codec ---
	h.mux.HandleFunc("POST /search", h.search)
	h.mux.HandleFunc("POST /flatten", h.flatten)
	h.mux.HandleFunc("POST /unflatten", h.unflatten)

	// --- Advisory lock ---
	h.mux.HandleFunc("GET /lock", h.getLock)
	h.mux.HandleFunc("PUT /lock", h.setLock)
	h.mux.HandleFunc("DELETE /lock", h.dropLock)

	// --- Snapshots ---
	h.mux.HandleFunc("GET /snapshots", h.listSnapshots)
	h.mux.HandleFunc("PUT /snapshots/{name}", h.saveSnapshot)
	h.mux.HandleFunc("POST /snapshots/{name}/restore", h.restoreSnapshot)
	h.mux.HandleFunc("DELETE /snapshots/{name}", h.deleteSnapshot)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// readValue decodes the request body as a single document value.
func readValue(r *http.Request) (document.Value, error) {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return document.Value{}, err
	}
	return document.ParseJSON(b)
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "flatjson",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "entries": h.manager.Len()})
}

func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.entries.Set(float64(h.manager.Len()))
	h.metrics.handler().ServeHTTP(w, r)
}

// ---------- entries ----------

func (h *Handler) listEntries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Dump())
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	create := r.URL.Query().Get("create") == "true"
	v, ok := h.manager.Read(key, create)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no entry %q", key))
		return
	}
	writeJSON(w, http.StatusOK, search.Result{Key: key, Value: v})
}

func (h *Handler) putEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	v, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if h.manager.Locked() {
		h.logger.Warn("write while locked", slog.String("key", key))
	}
	h.manager.Write(key, v)
	writeJSON(w, http.StatusOK, search.Result{Key: key, Value: v})
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !h.manager.Delete(key) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no entry %q", key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

// ---------- document ----------

func (h *Handler) getDocument(w http.ResponseWriter, _ *http.Request) {
	doc, err := h.manager.Document()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) initDocument(w http.ResponseWriter, r *http.Request) {
	h.applyDocument(w, r, h.manager.Init)
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	h.applyDocument(w, r, h.manager.Update)
}

func (h *Handler) applyDocument(w http.ResponseWriter, r *http.Request, apply func(document.Value) error) {
	doc, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := apply(doc); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "entries": h.manager.Len()})
}

// ---------- search and codec ----------

type searchRequest struct {
	Target   search.Target  `json:"target"`
	Criteria document.Value `json:"criteria"`
	match.Options
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	c := match.Term(req.Criteria)
	results := h.manager.DumpKeys(c, req.Options, req.Target)

	mode := req.Options.Mode().String()
	if c.IsSet() {
		mode = "set"
	}
	h.metrics.searches.WithLabelValues(req.Target.String(), mode).Inc()
	h.metrics.results.Observe(float64(len(results)))
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) flatten(w http.ResponseWriter, r *http.Request) {
	doc, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	entries, err := flat.Flatten(doc)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) unflatten(w http.ResponseWriter, r *http.Request) {
	entries, err := readValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	doc, err := flat.Unflatten(entries)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ---------- lock ----------

func (h *Handler) getLock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"locked": h.manager.Locked()})
}

func (h *Handler) setLock(w http.ResponseWriter, _ *http.Request) {
	h.manager.SetLock(true)
	writeJSON(w, http.StatusOK, map[string]bool{"locked": true})
}

func (h *Handler) dropLock(w http.ResponseWriter, _ *http.Request) {
	h.manager.DropLock()
	writeJSON(w, http.StatusOK, map[string]bool{"locked": false})
}

// ---------- snapshots ----------

func (h *Handler) listSnapshots(w http.ResponseWriter, _ *http.Request) {
	names, err := h.backend.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.manager.Persist(h.backend, name); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "snapshot": name})
}

func (h *Handler) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.manager.Restore(h.backend, name); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "snapshot": name, "entries": h.manager.Len()})
}

func (h *Handler) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	existed, err := h.backend.Delete(name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no snapshot %q", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "snapshot": name})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flat.ErrInvalidInput), errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSnapshotNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
