package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"regbot/traits/database"
)

// Response represents the API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Router builds the HTTP routes: probes plus the read-only admin API.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.adminAuthMiddleware)
	api.HandleFunc("/users", h.handleListUsers).Methods("GET")
	api.HandleFunc("/users/{id:[0-9]+}", h.handleGetUser).Methods("GET")

	return r
}

// StartWebServer serves Router until ctx is cancelled.
func (h *Handler) StartWebServer(ctx context.Context) {
	server := &http.Server{
		Addr:         h.cfg.GetServerAddress(),
		Handler:      h.Router(),
		ReadTimeout:  h.cfg.ReadTimeout,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
	}

	h.logger.Info("Starting web server", zap.String("address", server.Addr))
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Web server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	h.logger.Info("Shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		h.logger.Error("Server shutdown error", zap.Error(err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.readiness.Check(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		h.sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			h.sendErrorResponse(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	users, err := h.users.ListUsers(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		h.sendErrorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	total, err := h.users.CountUsers(r.Context())
	if err != nil {
		h.logger.Error("Failed to count users", zap.Error(err))
		h.sendErrorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.sendSuccessResponse(w, "", map[string]interface{}{
		"users": users,
		"total": total,
	})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.sendErrorResponse(w, "invalid id", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		if database.IsKind(err, database.ErrorNotFound) {
			h.sendErrorResponse(w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get user", zap.Int64("id", id), zap.Error(err))
		h.sendErrorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.sendSuccessResponse(w, "", user)
}

// adminAuthMiddleware requires the configured admin token. Without a
// configured token the API stays closed.
func (h *Handler) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if h.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
			h.sendErrorResponse(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	h.sendJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, message string, status int) {
	h.sendJSON(w, status, Response{Success: false, Message: message})
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
