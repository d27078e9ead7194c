package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/offsetx/carbon-tracker/internal/logging"
	"github.com/offsetx/carbon-tracker/internal/metrics"
	"github.com/offsetx/carbon-tracker/internal/models"
	"github.com/offsetx/carbon-tracker/internal/store"
)

// UserStore defines the interface for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// CookieConfig controls the session cookie issued at login.
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	users    UserStore
	sessions Sessions
	cookie   CookieConfig
	log      *logging.Logger
	metrics  *metrics.Metrics
}

func NewHandler(users UserStore, sessions Sessions, cookie CookieConfig, log *logging.Logger, m *metrics.Metrics) *Handler {
	if cookie.Name == "" {
		cookie.Name = DefaultSessionCookie
	}
	if cookie.TTL <= 0 {
		cookie.TTL = DefaultSessionTTL
	}
	return &Handler{users: users, sessions: sessions, cookie: cookie, log: log, metrics: m}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Register creates a new user.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Name == "" || req.Username == "" || req.Password == "" || req.Mobile == "" {
		writeError(w, http.StatusBadRequest, "name, username, password, and mobile are required")
		return
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		logging.FromContext(r.Context(), h.log).WithError(err).Error("hash password")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := models.NewUser(req.Name, req.Username, hashed, req.Mobile)
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			writeError(w, http.StatusBadRequest, "username already exists")
			return
		}
		logging.FromContext(r.Context(), h.log).WithError(err).Error("create user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.metrics.Registered()
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "User registered successfully"})
}

// Login authenticates a user and creates a session. The failure message is
// identical for an unknown username and a wrong password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.FromContext(r.Context(), h.log).WithError(err).Error("lookup user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !CheckPassword(user.Password, req.Password) {
		h.metrics.LoginFailed()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sid, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		logging.FromContext(r.Context(), h.log).WithError(err).Error("create session")
		writeError(w, http.StatusInternalServerError, "session creation failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookie.TTL / time.Second),
	})
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Login successful"})
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			logging.FromContext(r.Context(), h.log).WithError(err).Warn("delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Logged out"})
}

// Me returns the currently authenticated user without the password hash.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		logging.FromContext(r.Context(), h.log).WithError(err).Error("get user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
