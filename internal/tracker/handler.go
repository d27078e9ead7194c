package tracker

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/offsetx/carbon-tracker/internal/auth"
	"github.com/offsetx/carbon-tracker/internal/logging"
	"github.com/offsetx/carbon-tracker/internal/metrics"
	"github.com/offsetx/carbon-tracker/internal/models"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Handler holds the activity HTTP handlers.
type Handler struct {
	svc     *Service
	log     *logging.Logger
	metrics *metrics.Metrics
}

func NewHandler(svc *Service, log *logging.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes mounts the per-kind endpoints for every log kind. All of them
// require an authenticated user.
func (h *Handler) Routes(r chi.Router) {
	for _, kind := range models.Kinds {
		r.Post("/"+string(kind), h.Record(kind))
		r.Get("/"+string(kind)+"/month/{month}", h.List(kind, "month"))
		r.Get("/"+string(kind)+"/day/{day}", h.List(kind, "day"))
	}
	r.Get("/summary/{month}", h.Summary)
	r.Post("/share/{month}", h.Share)
	r.Get("/share/{month}", h.SharedReport)
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and answered with a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case notFound(err):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrReportsDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logging.FromContext(r.Context(), h.log).WithError(err).Error("tracker request failed",
			"method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
	}
	return id, ok
}

// Record appends one entry of kind for the current user.
func (h *Handler) Record(kind models.LogKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.userID(w, r)
		if !ok {
			return
		}

		entry, err := models.DecodeEntry(kind, r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := h.svc.Record(r.Context(), userID, entry); err != nil {
			h.fail(w, r, err)
			return
		}

		h.metrics.ActivityLogged(string(kind))
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: kind.Label() + " log added"})
	}
}

// List returns the current user's entries of kind matching the {month} or
// {day} path parameter.
func (h *Handler) List(kind models.LogKind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.userID(w, r)
		if !ok {
			return
		}

		entries, err := h.svc.Entries(r.Context(), userID, kind, chi.URLParam(r, param))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// Summary returns the month's four logs and green score.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	sum, err := h.svc.Summary(r.Context(), userID, chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Leaderboard is public: the ten lowest full-history emitters.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Leaderboard(r.Context(), DefaultLeaderboardLength)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Share builds and archives the current user's card for {month}.
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	card, err := h.svc.Share(r.Context(), userID, chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.Shared()
	writeJSON(w, http.StatusCreated, card)
}

// SharedReport returns the archived card for {month}.
func (h *Handler) SharedReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	card, err := h.svc.SharedReport(r.Context(), userID, chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}
