// Package api provides HTTP handlers for the WABCAST gateway.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/wabcast/internal/audit"
	"github.com/ashureev/wabcast/internal/broadcast"
	"github.com/ashureev/wabcast/internal/directory"
	"github.com/ashureev/wabcast/internal/session"
	"github.com/ashureev/wabcast/internal/whatsapp"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

// Handler wires the gateway services to the HTTP surface.
type Handler struct {
	dir        *directory.Directory
	sessions   *session.Manager
	conn       *whatsapp.Manager
	dispatcher *broadcast.Dispatcher
	audit      *audit.Log
	isDev      bool
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(dir *directory.Directory, sessions *session.Manager, conn *whatsapp.Manager, dispatcher *broadcast.Dispatcher, auditLog *audit.Log, isDev bool) *Handler {
	return &Handler{
		dir:        dir,
		sessions:   sessions,
		conn:       conn,
		dispatcher: dispatcher,
		audit:      auditLog,
		isDev:      isDev,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFromError maps classified errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errdefs.IsPermissionDenied(err):
		return http.StatusForbidden
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsConflict(err):
		return http.StatusConflict
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its HTTP response. Internal detail
// stays out of 5xx bodies.
func writeError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

// RegisterRoutes registers the gateway's HTTP surface on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/status", h.Status)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth(h.sessions, h.dir))
		r.Post("/logout", h.Logout)
		r.Post("/api/start-whatsapp", h.StartWhatsApp)
		r.Get("/api/whatsapp-qr", h.WhatsAppQR)
		r.Post("/send-broadcast", h.SendBroadcast)
		r.Get("/api/logs", h.Logs)
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Register creates a new account with a 30-day subscription window.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.dir.Register(r.Context(), req.Email, req.Phone, req.Password); err != nil {
		if errdefs.IsConflict(err) {
			Error(w, http.StatusConflict, "User already exists")
			return
		}
		writeError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and issues the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.dir.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errdefs.IsUnauthorized(err) {
			Error(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if errdefs.IsPermissionDenied(err) {
			Error(w, http.StatusForbidden, "Subscription expired. Please renew.")
			return
		}
		writeError(w, err)
		return
	}

	token := h.sessions.Create(account.Email)
	h.sessions.SetCookie(w, token, h.isDev)
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout invalidates the caller's session unconditionally.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := session.TokenFromRequest(r); token != "" {
		h.sessions.Destroy(token)
	}
	h.sessions.ClearCookie(w, h.isDev)
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Status reports whether the caller holds a live session.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if email, ok := h.sessions.Peek(r); ok {
		JSON(w, http.StatusOK, map[string]interface{}{"loggedIn": true, "email": email})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"loggedIn": false})
}

// StartWhatsApp starts the protocol connection. Idempotent.
func (h *Handler) StartWhatsApp(w http.ResponseWriter, r *http.Request) {
	started, err := h.conn.Start(r.Context())
	if err != nil {
		slog.Error("Failed to start protocol connection", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to connect")
		return
	}

	message := "Already started"
	if started {
		message = "Started WhatsApp connection"
	}
	JSON(w, http.StatusOK, map[string]string{"message": message})
}

// WhatsAppQR returns the pending pairing code.
func (h *Handler) WhatsAppQR(w http.ResponseWriter, r *http.Request) {
	code, err := h.conn.PairCode()
	if err != nil {
		Error(w, http.StatusNotFound, "No QR available. WhatsApp is connected.")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"qr": code})
}

type broadcastRequest struct {
	Message string   `json:"message"`
	Numbers []string `json:"numbers"`
}

// SendBroadcast fans the message out to every recipient and records the
// attempt in the caller's audit log.
func (h *Handler) SendBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := session.EmailFromContext(r.Context())
	result, err := h.dispatcher.Broadcast(r.Context(), email, req.Message, req.Numbers)
	if err != nil {
		switch {
		case errdefs.IsUnavailable(err):
			Error(w, http.StatusServiceUnavailable, "WhatsApp not connected")
		case errdefs.IsInvalidArgument(err):
			Error(w, http.StatusBadRequest, "Message and numbers are required")
		default:
			slog.Error("Broadcast failed", "email", email, "error", err)
			JSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":   "Failed to send broadcast",
				"sentTo":  resultSentTo(result),
				"details": resultRecipients(result),
			})
		}
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"sentTo":     result.SentTo,
		"recipients": result.Recipients,
	})
}

func resultSentTo(result *broadcast.Result) int {
	if result == nil {
		return 0
	}
	return result.SentTo
}

func resultRecipients(result *broadcast.Result) []broadcast.RecipientResult {
	if result == nil {
		return nil
	}
	return result.Recipients
}

// Logs returns the caller's broadcast history in insertion order.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	email := session.EmailFromContext(r.Context())
	entries, err := h.audit.List(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, entries)
}
