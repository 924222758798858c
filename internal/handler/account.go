// Package handler exposes the account and preference operations over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tbhasan/tableforge/internal/auth"
	"github.com/tbhasan/tableforge/internal/service"
)

// AccountHandler serves registration, login, profile, and preference routes.
//
// Handlers translate HTTP to service calls and back; no business rules live
// here. Account and options payloads go out through AsMap, which is what
// enforces the secret-exclusion and null-omission contracts on the wire.
type AccountHandler struct {
	service *service.AccountService
	logger  *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(service *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

// sessionCookie builds the HttpOnly session cookie. maxAge <= 0 deletes it.
func sessionCookie(token string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // enable in production (requires HTTPS)
	}
	if maxAge <= 0 {
		c.MaxAge = -1
	}
	return c
}

// HandleRegister provisions a new account.
//
// HTTP: POST /api/register
// Body: {"name": "alice", "email": "a@example.com", "password": "..."}
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid register JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	account, err := h.service.Register(r.Context(), service.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account.AsMap())
}

// HandleLogin authenticates by name and password and sets the session cookie.
//
// HTTP: POST /api/login
// Body: {"name": "alice", "password": "..."}
//
// The name is matched case-insensitively. Wrong password, unknown name, and
// an account with no password all return the same 401.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid login JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Name, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, sessionCookie(result.Token, 24*time.Hour))
	writeJSON(w, http.StatusOK, result.Account.AsMap())
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Stateless sessions mean "logout" is just deleting the client-side cookie;
// the token itself stays valid until expiry.
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie("", 0))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated account's profile.
//
// HTTP: GET /api/me
// Auth: required
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, but be safe.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account.AsMap())
}

// HandleChangePassword sets a new password for the authenticated account.
//
// HTTP: PUT /api/me/password
// Body: {"password": "..."}
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	if err := h.service.ChangePassword(r.Context(), accountID, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// HandleGetOptions returns the account's preference overrides — only the
// fields the user has explicitly set. Clients merge this onto their own
// defaults.
//
// HTTP: GET /api/me/options
func (h *AccountHandler) HandleGetOptions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	opts, err := h.service.GetOptions(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, opts.AsMap())
}

// HandlePatchOptions applies a sparse preference update.
//
// HTTP: PATCH /api/me/options
// Body: {"grid_size": 70, "fow_colour": null}
//
// A value sets the override, null clears it back to "inherit default",
// omitted fields are untouched. Responds with the updated override map.
func (h *AccountHandler) HandlePatchOptions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	opts, err := h.service.UpdateOptions(r.Context(), accountID, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, opts.AsMap())
}

// HandleDeleteMe deletes the authenticated account and its preference record.
//
// HTTP: DELETE /api/me
func (h *AccountHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	if err := h.service.DeleteAccount(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, sessionCookie("", 0))
	w.WriteHeader(http.StatusNoContent)
}
