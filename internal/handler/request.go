package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/pagination"
	"github.com/sakif/htmx-starter/internal/service"
)

// maxBodyBytes caps JSON and form bodies.
const maxBodyBytes = 1 << 20

func isJSON(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/json"
}

// decodeJSON reads the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}

// parseForm parses query and urlencoded body into r.Form. JSON bodies are
// left unread.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return apperror.ValidationFailed("body", "malformed form data")
	}
	return nil
}

// formField returns a pointer to the submitted body value, or nil when the
// field was not sent at all. That difference is what makes PUT partial.
func formField(r *http.Request, key string) *string {
	if _, ok := r.PostForm[key]; !ok {
		return nil
	}
	v := r.PostForm.Get(key)
	return &v
}

// optionalField is formField with "" also meaning "unchanged", for forms
// where blank inputs are left alone (profile password).
func optionalField(r *http.Request, key string) *string {
	v := formField(r, key)
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

// listQuery reads search, page and per_page from the query string or form
// body. Missing values take the defaults; malformed or out of range values
// are validation errors.
func listQuery(r *http.Request, ownerID string) (service.ItemQuery, error) {
	q := service.ItemQuery{
		OwnerID: ownerID,
		Search:  strings.TrimSpace(r.Form.Get("search")),
	}

	var err error
	if q.Page, err = intParam(r, "page", 1); err != nil {
		return q, err
	}
	if q.PerPage, err = intParam(r, "per_page", pagination.DefaultPerPage); err != nil {
		return q, err
	}

	return q, pagination.Params{Page: q.Page, PerPage: q.PerPage}.Validate()
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.Form.Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(key, key+" must be an integer")
	}
	return n, nil
}

// itemID parses the {id} path parameter.
func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.ValidationFailed("id", "item id must be a positive integer")
	}
	return id, nil
}
