package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"trialqc/internal/bus"
	"trialqc/internal/cache"
	"trialqc/internal/query"
	"trialqc/internal/tool"
)

var toolNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Handler struct {
	Registry *tool.Registry
	Cache    *cache.Manager
	Bus      *bus.Publisher
	Log      *slog.Logger
	CacheTTL time.Duration
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/tools", h.handleTools)
	r.Post("/run_tool/{tool}", h.handleRunTool)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.Registry.Names()})
}

func (h *Handler) handleRunTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tool")
	if !toolNameRe.MatchString(name) {
		h.Log.Warn("invalid tool name requested", "tool", name)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid tool name"})
		return
	}

	fn, ok := h.Registry.Get(name)
	if !ok {
		h.Log.Warn("tool not found", "tool", name)
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Tool '" + name + "' not found."})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Request must contain a JSON payload."})
		return
	}

	if h.Cache != nil {
		if cached, hit := h.Cache.Get(r.Context(), "results", cacheKey(name, body)); hit {
			h.Log.Info("tool result served from cache", "tool", name)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	started := time.Now()
	result := fn(r.Context(), body)
	h.Log.Info("tool executed", "tool", name, "duration_ms", time.Since(started).Milliseconds())

	h.publishCriticalFindings(name, result)

	encoded, err := json.Marshal(result)
	if err != nil {
		h.Log.Error("encode tool result failed", "tool", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to encode tool result."})
		return
	}
	if h.Cache != nil {
		h.Cache.Set(r.Context(), "results", cacheKey(name, body), encoded, h.CacheTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

// publishCriticalFindings emits a bus event when a query run surfaces
// critical findings. Publish failures are logged, not surfaced.
func (h *Handler) publishCriticalFindings(name string, result any) {
	if h.Bus == nil {
		return
	}
	qr, ok := result.(*query.Result)
	if !ok {
		return
	}
	critical := qr.Statistics.CriticalQueries
	if critical == 0 {
		return
	}
	event := bus.CriticalQueryEvent{
		Tool:          name,
		CriticalCount: critical,
		TotalQueries:  len(qr.Queries),
		GeneratedAt:   time.Now().UTC(),
	}
	if err := h.Bus.Publish(bus.SubjectCriticalQueries, event); err != nil {
		h.Log.Warn("publish critical query event failed", "tool", name, "error", err)
	}
}

// cacheKey identifies a tool run by its name and exact payload.
func cacheKey(name string, body []byte) string {
	sum := sha256.Sum256(body)
	return name + ":" + hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
