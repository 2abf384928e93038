package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/htmx"
	"github.com/sakif/htmx-starter/internal/model"
)

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/auth/login"

// contextKey is unexported so no other package can read or shadow the
// values stored under it.
type contextKey string

const userKey contextKey = "user"

// errUnauthenticated covers every "no usable credential" case: missing
// cookie, bad or expired token, deleted or deactivated user.
var errUnauthenticated = errors.New("auth: not authenticated")

// UserLoader resolves a token subject into a user row.
type UserLoader interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

// CookieOptions describes the auth cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Set writes token into the auth cookie. HttpOnly keeps it away from
// page scripts; SameSite=Lax stops it riding along on cross-site POSTs.
func (c CookieOptions) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the auth cookie.
func (c CookieOptions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticator turns the auth cookie into a *model.User in the request
// context.
type Authenticator struct {
	tokens *TokenService
	users  UserLoader
	cookie CookieOptions
	logger *slog.Logger
}

func NewAuthenticator(tokens *TokenService, users UserLoader, cookie CookieOptions, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, cookie: cookie, logger: logger}
}

// Cookie exposes the cookie settings so handlers can set and clear it.
func (a *Authenticator) Cookie() CookieOptions { return a.cookie }

// RequireUser rejects requests without an active user.
//
// UNAUTHENTICATED RESPONSES:
//   - htmx request: 200 + HX-Redirect to the login page
//   - JSON client (Accept or Content-Type application/json): 401 JSON body
//   - anything else: 302 to the login page
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		if err != nil {
			if !errors.Is(err, errUnauthenticated) {
				a.logger.Error("resolving current user", slog.String("error", err.Error()))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			a.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalUser attaches the user when the cookie is valid and otherwise
// lets the request through anonymously.
func (a *Authenticator) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		if err == nil {
			r = r.WithContext(WithUser(r.Context(), user))
		} else if !errors.Is(err, errUnauthenticated) {
			a.logger.Warn("optional auth lookup failed", slog.String("error", err.Error()))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(r *http.Request) (*model.User, error) {
	cookie, err := r.Cookie(a.cookie.Name)
	if err != nil || cookie.Value == "" {
		return nil, errUnauthenticated
	}

	userID, err := a.tokens.Validate(cookie.Value)
	if err != nil {
		return nil, errUnauthenticated
	}

	user, err := a.users.UserByID(r.Context(), userID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, errUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, errUnauthenticated
	}
	return user, nil
}

func (a *Authenticator) unauthorized(w http.ResponseWriter, r *http.Request) {
	if !htmx.IsRequest(r) && wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
		return
	}
	htmx.Redirect(w, r, LoginPath)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) for
// anonymous requests.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}
