package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/htmx"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/service"
)

// UserHandler serves the profile page and the /users JSON API.
type UserHandler struct {
	users  *service.UserService
	views  *Renderer
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, views *Renderer, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, views: views, logger: logger}
}

// HandleProfilePage renders the profile page.
//
// HTTP: GET /profile
func (h *UserHandler) HandleProfilePage(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"User": currentUser(r)}
	if r.URL.Query().Get("updated") != "" {
		data["Notice"] = "Profile updated."
	}
	if err := h.views.Page(w, http.StatusOK, "profile", data); err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleProfileUpdate saves the profile form. Blank fields are left
// unchanged.
//
// HTTP: POST /profile   (form: email, password)
//
// htmx gets the form fragment back, with a notice or the validation
// message. A plain form post is redirected (POST/redirect/GET) or, on a
// validation error, gets the page again with a 400.
func (h *UserHandler) HandleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if err := parseForm(w, r); err != nil {
		writeError(w, h.logger, err)
		return
	}

	upd := model.UserUpdate{
		Email:    optionalField(r, "email"),
		Password: optionalField(r, "password"),
	}

	updated, err := h.users.UpdateProfile(r.Context(), user, upd)
	if err != nil {
		var appErr *apperror.AppError
		if status, _ := errorStatus(err); status == http.StatusInternalServerError || !errors.As(err, &appErr) {
			writeError(w, h.logger, err)
			return
		}
		h.renderProfile(w, r, http.StatusBadRequest, map[string]any{"User": user, "Error": appErr.Message})
		return
	}

	if !htmx.IsRequest(r) {
		http.Redirect(w, r, "/profile?updated=1", http.StatusSeeOther)
		return
	}
	h.renderProfile(w, r, http.StatusOK, map[string]any{"User": updated, "Notice": "Profile updated."})
}

func (h *UserHandler) renderProfile(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	var err error
	if htmx.IsRequest(r) {
		// htmx only swaps 2xx responses.
		err = h.views.Fragment(w, http.StatusOK, "profile/_form", data)
	} else {
		err = h.views.Page(w, status, "profile", data)
	}
	if err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleMe returns the caller's account.
//
// HTTP: GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

// HandleUpdateMe changes the caller's email and/or password.
//
// HTTP: PATCH /users/me   (JSON: email?, password?)
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd model.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), currentUser(r), upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleList lists accounts. Superuser only.
//
// HTTP: GET /users?limit=50&offset=0
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.users.List(r.Context(), currentUser(r), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns any account. Superuser only.
//
// HTTP: GET /users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate changes any account, flags included. Superuser only.
//
// HTTP: PATCH /users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd model.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Update(r.Context(), currentUser(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDelete removes an account and its items. Superuser only.
//
// HTTP: DELETE /users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
