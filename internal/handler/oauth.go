package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"
	"github.com/tbhasan/tableforge/internal/auth"
	"github.com/tbhasan/tableforge/internal/service"
)

// OAuthHandler manages the GitHub OAuth login flow.
//
//	HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//	HandleGitHubCallback → receive the code, exchange it, provision/login the account
type OAuthHandler struct {
	github  *auth.GitHubProvider
	service *service.AccountService
	logger  *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler.
func NewOAuthHandler(github *auth.GitHubProvider, service *service.AccountService, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{github: github, service: service, logger: logger}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state value goes into a short-lived cookie; the callback verifies
// it to prove the flow was initiated by this server (CSRF protection).
func (h *OAuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *OAuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("oauth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.service.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("oauth callback: login failed",
			slog.String("login", ghUser.Login),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, sessionCookie(result.Token, 24*time.Hour))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
