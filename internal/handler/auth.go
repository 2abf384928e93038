package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/htmx-starter/internal/auth"
	"github.com/sakif/htmx-starter/internal/htmx"
	"github.com/sakif/htmx-starter/internal/service"
)

const (
	stateCookieName = "oauth_state"
	afterLoginPath  = "/items"
)

// AuthHandler serves the login and registration pages, the cookie
// login/logout endpoints and the optional GitHub OAuth flow.
type AuthHandler struct {
	auth   *service.AuthService
	github *auth.GitHubProvider // nil when GitHub login is not configured
	cookie auth.CookieOptions
	views  *Renderer
	logger *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	cookie auth.CookieOptions,
	views *Renderer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		github: github,
		cookie: cookie,
		views:  views,
		logger: logger,
	}
}

// HandleLoginPage renders the login form. Logged-in users go home instead.
//
// HTTP: GET /auth/login
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	data := map[string]any{
		"User":          nil,
		"Registered":    r.URL.Query().Get("registered") != "",
		"GitHubEnabled": h.github != nil,
	}
	if err := h.views.Page(w, http.StatusOK, "auth/login", data); err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleRegisterPage renders the registration form.
//
// HTTP: GET /auth/register
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err := h.views.Page(w, http.StatusOK, "auth/register", map[string]any{"User": nil}); err != nil {
		renderFailed(w, h.logger, err)
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an account and returns it as JSON (201).
// htmx callers are also sent on to the login page.
//
// HTTP: POST /auth/register   (form or JSON: email, password)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if isJSON(r) {
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, h.logger, err)
			return
		}
	} else {
		if err := parseForm(w, r); err != nil {
			writeError(w, h.logger, err)
			return
		}
		in.Email, in.Password = r.PostForm.Get("email"), r.PostForm.Get("password")
	}

	user, err := h.auth.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if htmx.IsRequest(r) {
		w.Header().Set(htmx.HeaderRedirect, auth.LoginPath+"?registered=1")
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin checks the form credentials and sets the auth cookie.
//
// HTTP: POST /auth/cookie/login   (form: username, password)
// The field is called "username" for compatibility with OAuth2 password
// forms; it holds the email address.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookie.Set(w, res.Token)
	if htmx.IsRequest(r) {
		w.Header().Set(htmx.HeaderRedirect, afterLoginPath)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogout clears the auth cookie.
//
// HTTP: POST /auth/cookie/logout
//
// The JWT is stateless: a copy of the token stays valid until it expires,
// but the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)
	if htmx.IsRequest(r) {
		w.Header().Set(htmx.HeaderRedirect, "/")
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutRedirect is the link version of logout.
//
// HTTP: GET /auth/logout
func (h *AuthHandler) HandleLogoutRedirect(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleGitHubLogin sends the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the GitHub profile
//  3. Find or create the account for its email
//  4. Set the auth cookie and redirect to the items page
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookie.Set(w, res.Token)
	http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
}
