package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SubmissionRelay/internal/channels"
	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AssignmentLister exposes the scope to channel table.
type AssignmentLister interface {
	Entries() []channels.Entry
}

// Deps wires the read-only status API.
type Deps struct {
	Store       ports.SubmissionStore
	Assignments AssignmentLister
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

type handler struct {
	store       ports.SubmissionStore
	assignments AssignmentLister
	logger      *slog.Logger
}

// NewRouter builds the chi router with per-IP rate limiting.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{store: deps.Store, assignments: deps.Assignments, logger: logger}

	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(120, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/submissions", h.listSubmissions)
	r.Get("/submissions/{id}", h.getSubmission)
	r.Get("/scopes/{scope}/daily", h.latestDaily)
	r.Get("/scopes/{scope}/stats", h.stats)
	r.Get("/assignments", h.listAssignments)

	return r
}

func (h *handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	q := domain.Query{State: domain.StateReady, Scope: r.URL.Query().Get("scope"), Limit: defaultListLimit}

	if raw := r.URL.Query().Get("state"); raw != "" {
		state, ok := domain.ParseState(raw)
		if !ok {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		q.State = state
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = min(limit, maxListLimit)
	}

	items, err := h.store.QueryByState(r.Context(), q)
	if err != nil {
		h.fail(w, "query submissions", err)
		return
	}
	if items == nil {
		items = []domain.Submission{}
	}
	h.writeJSON(w, items)
}

func (h *handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get submission", err)
		return
	}
	h.writeJSON(w, item)
}

func (h *handler) latestDaily(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.LatestDaily(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		h.fail(w, "latest daily", err)
		return
	}
	h.writeJSON(w, item)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByState(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		h.fail(w, "count by state", err)
		return
	}
	out := map[string]int{}
	for _, state := range []domain.State{domain.StateInitial, domain.StateReady, domain.StateDelivered} {
		out[state.String()] = counts[state]
	}
	h.writeJSON(w, out)
}

func (h *handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	if h.assignments == nil {
		h.writeJSON(w, []channels.Entry{})
		return
	}
	h.writeJSON(w, h.assignments.Entries())
}

func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("status api request failed", "op", op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}
