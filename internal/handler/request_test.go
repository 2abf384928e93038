package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/pagination"
)

func formRequest(method, target string, values url.Values) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestListQuery(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		wantPage    int
		wantPerPage int
		wantSearch  string
		wantField   string
	}{
		{"defaults", "/items", 1, pagination.DefaultPerPage, "", ""},
		{"explicit", "/items?page=3&per_page=25&search=+milk+", 3, 25, "milk", ""},
		{"page zero", "/items?page=0", 0, 0, "", "page"},
		{"negative per_page", "/items?per_page=-1", 0, 0, "", "per_page"},
		{"per_page over max", "/items?per_page=101", 0, 0, "", "per_page"},
		{"not a number", "/items?per_page=ten", 0, 0, "", "per_page"},
		{"offset overflows", "/items?page=922337203685477582&per_page=10", 0, 0, "", "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			require.NoError(t, parseForm(httptest.NewRecorder(), r))

			q, err := listQuery(r, "owner-1")

			if tt.wantField != "" {
				var appErr *apperror.AppError
				require.True(t, errors.As(err, &appErr), "got %v", err)
				assert.Equal(t, tt.wantField, appErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "owner-1", q.OwnerID)
			assert.Equal(t, tt.wantPage, q.Page)
			assert.Equal(t, tt.wantPerPage, q.PerPage)
			assert.Equal(t, tt.wantSearch, q.Search)
		})
	}
}

func TestListQuery_ReadsFormBody(t *testing.T) {
	r := formRequest(http.MethodPut, "/items/1?page=2", url.Values{"per_page": {"5"}, "search": {"x"}})
	require.NoError(t, parseForm(httptest.NewRecorder(), r))

	q, err := listQuery(r, "owner-1")

	require.NoError(t, err)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 5, q.PerPage)
	assert.Equal(t, "x", q.Search)
}

func TestFormField_DistinguishesMissingFromEmpty(t *testing.T) {
	r := formRequest(http.MethodPut, "/items/1", url.Values{"title": {"new"}, "description": {""}})
	require.NoError(t, parseForm(httptest.NewRecorder(), r))

	title := formField(r, "title")
	require.NotNil(t, title)
	assert.Equal(t, "new", *title)

	desc := formField(r, "description")
	require.NotNil(t, desc, "an empty value was sent and must clear the field")
	assert.Equal(t, "", *desc)

	assert.Nil(t, formField(r, "missing"))
	assert.Nil(t, optionalField(r, "description"), "blank means unchanged for optional fields")
}

func TestReadItemInput_JSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/items/1?page=4", strings.NewReader(`{"description":"d"}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	input, err := readItemInput(httptest.NewRecorder(), r)

	require.NoError(t, err)
	assert.Nil(t, input.Title)
	require.NotNil(t, input.Description)
	assert.Equal(t, "d", *input.Description)
	assert.Equal(t, "4", r.Form.Get("page"))
}

func TestReadItemInput_BadJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"title":`))
	r.Header.Set("Content-Type", "application/json")

	_, err := readItemInput(httptest.NewRecorder(), r)

	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantKind    string
		wantMessage string
	}{
		{"validation", apperror.ValidationFailed("title", "title is required"), http.StatusBadRequest, "validation_error", "title is required"},
		{"not found", apperror.NotFound("item", 7), http.StatusNotFound, "not_found", "item not found with id 7"},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "forbidden", "nope"},
		{"wrapped conflict", errors.Join(errors.New("ctx"), apperror.Conflict("user", "taken")), http.StatusConflict, "conflict", "user conflict: taken"},
		{"internal", errors.New("sqlstore: disk on fire"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, logger, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), `"error":"`+tt.wantKind+`"`)
			assert.Contains(t, w.Body.String(), tt.wantMessage)
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}
