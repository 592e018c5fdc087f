package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/entropyscan/internal/alerts"
	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/report"
	"github.com/obsidianstack/entropyscan/internal/stats"
	"github.com/obsidianstack/entropyscan/internal/store"
)

// Handler is the HTTP handler for the /api/v1/* endpoints and /metrics.
// It reads file scores from the store and computes aggregates per request.
type Handler struct {
	store  *store.Store
	target string
	alerts *alerts.Engine
	mux    *http.ServeMux
}

// New creates a Handler wired to the given store and registers all routes.
// target is reported as the Stats target. eng may be nil, in which case
// /api/v1/alerts always returns an empty list.
func New(st *store.Store, target string, eng *alerts.Engine) http.Handler {
	h := &Handler{store: st, target: target, alerts: eng, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.HandleFunc("/api/v1/files", h.files)
	h.mux.HandleFunc("/api/v1/file", h.file)
	h.mux.HandleFunc("/api/v1/skipped", h.skipped)
	h.mux.HandleFunc("/api/v1/outliers", h.outliers)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/alerts", h.alertList)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	discovered, scored := h.store.Count()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Target:     h.target,
		Discovered: discovered,
		Scored:     scored,
		UpdatedAt:  formatTime(h.store.UpdatedAt()),
	})
}

// stats returns GET /api/v1/stats. With nothing scored the aggregates are
// zero and "scored" is 0.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	st, _ := Summarize(h.store, h.target)
	jsonResp(w, http.StatusOK, st)
}

// alertList returns GET /api/v1/alerts: firing alerts and those resolved
// within the last hour, newest first.
func (h *Handler) alertList(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// files returns GET /api/v1/files, optionally filtered by ?min_entropy=.
func (h *Handler) files(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	threshold := 0.0
	if raw := r.URL.Query().Get("min_entropy"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			jsonErr(w, http.StatusBadRequest, "min_entropy must be a non-negative number")
			return
		}
		threshold = v
	}
	jsonResp(w, http.StatusOK, stats.FilterMinEntropy(h.store.Entropies(), threshold))
}

// file returns GET /api/v1/file?path= for a single tracked file.
func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		jsonErr(w, http.StatusBadRequest, "path is required")
		return
	}
	e, ok := h.store.Get(path)
	if !ok {
		jsonErr(w, http.StatusNotFound, "file not tracked")
		return
	}
	jsonResp(w, http.StatusOK, FileResponse{
		FileEntropy: e.File,
		Error:       e.Err,
		UpdatedAt:   formatTime(e.UpdatedAt),
	})
}

// skipped returns GET /api/v1/skipped.
func (h *Handler) skipped(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, skippedEntries(h.store.List()))
}

// outliers returns GET /api/v1/outliers.
func (h *Handler) outliers(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	out, _ := stats.Outliers(h.store.Entropies())
	if out == nil {
		out = []entropy.FileEntropy{}
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.target))
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	files, discovered := h.store.Scores()
	st, _ := stats.Summarize(h.target, discovered, files)
	outliers, _ := stats.Outliers(files)

	fams := append([]*dto.MetricFamily{report.EntropyFamily(files)}, report.StatsFamilies(st)...)
	fams = append(fams, report.OutlierFamily(outliers))

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteProm(w, fams...); err != nil {
		slog.Warn("api: write metrics", "err", err)
	}
}

// --- shared builders --------------------------------------------------------

// Summarize computes the aggregate report over the store's scored files.
// ok is false when nothing has been scored.
func Summarize(st *store.Store, target string) (stats.Stats, bool) {
	files, discovered := st.Scores()
	return stats.Summarize(target, discovered, files)
}

// BuildSnapshot assembles the full state of the store. Each snapshot gets a
// fresh ID.
func BuildSnapshot(st *store.Store, target string) SnapshotResponse {
	entries := st.List()
	files := make([]entropy.FileEntropy, 0, len(entries))
	for _, e := range entries {
		if e.Scored() {
			files = append(files, e.File)
		}
	}
	s, _ := stats.Summarize(target, len(entries), files)
	outliers, _ := stats.Outliers(files)
	if outliers == nil {
		outliers = []entropy.FileEntropy{}
	}

	return SnapshotResponse{
		ID:          uuid.NewString(),
		Stats:       s,
		Files:       files,
		Outliers:    outliers,
		Skipped:     skippedEntries(entries),
		UpdatedAt:   formatTime(st.UpdatedAt()),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func skippedEntries(entries []store.Entry) []SkippedResponse {
	out := make([]SkippedResponse, 0)
	for _, e := range entries {
		if !e.Scored() {
			out = append(out, SkippedResponse{Path: e.File.Path, Error: e.Err})
		}
	}
	return out
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
