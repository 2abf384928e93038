package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/htmx-starter/internal/htmx"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/service"
)

// ItemHandler serves /items: the paginated table and its inline edits.
//
// Every fragment that can lead to another request (row buttons, edit form,
// pagination links) carries page, per_page and search, so after an edit
// or delete the user lands back on the listing they were looking at.
type ItemHandler struct {
	items  *service.ItemService
	views  *Renderer
	logger *slog.Logger
}

func NewItemHandler(items *service.ItemService, views *Renderer, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, views: views, logger: logger}
}

// HandleList renders one page of the caller's items.
//
// HTTP: GET /items?search=&page=1&per_page=10
// htmx gets items/_table, a browser gets the full items/index page.
func (h *ItemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if err := parseForm(w, r); err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := listQuery(r, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.items.List(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	data := map[string]any{"User": user, "Page": page}
	if htmx.IsRequest(r) {
		err = h.views.Fragment(w, http.StatusOK, "items/_table", data)
	} else {
		err = h.views.Page(w, http.StatusOK, "items/index", data)
	}
	if err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleCreate adds an item and returns the refreshed table, reset to
// page 1 with the current search and page size.
//
// HTTP: POST /items   (form or JSON: title, description; search, per_page)
func (h *ItemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	input, err := readItemInput(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := listQuery(r, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var title, description string
	if input.Title != nil {
		title = *input.Title
	}
	if input.Description != nil {
		description = *input.Description
	}

	_, page, err := h.items.Create(r.Context(), q, title, description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	htmx.Trigger(w, "item-created")
	data := map[string]any{"User": user, "Page": page}
	if err := h.views.Fragment(w, http.StatusCreated, "items/_table", data); err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleEdit swaps a row for its edit form.
//
// HTTP: GET /items/{id}/edit
func (h *ItemHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	h.renderRow(w, r, "items/_edit_form")
}

// HandleCancel swaps the edit form back for the unchanged row.
//
// HTTP: GET /items/{id}/cancel
func (h *ItemHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.renderRow(w, r, "items/_item_row")
}

func (h *ItemHandler) renderRow(w http.ResponseWriter, r *http.Request, fragment string) {
	user := currentUser(r)
	id, q, err := h.rowRequest(w, r, user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	item, err := h.items.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.views.Fragment(w, http.StatusOK, fragment, newItemRow(*item, q)); err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleUpdate applies a partial update and returns the row.
//
// HTTP: PUT /items/{id}   (title?, description?; page, search, per_page)
func (h *ItemHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, err := itemID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	input, err := readItemInput(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := listQuery(r, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	item, err := h.items.Update(r.Context(), user.ID, id, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.views.Fragment(w, http.StatusOK, "items/_item_row", newItemRow(*item, q)); err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleDelete removes an item and returns the table for the same
// listing, moved back a page if the current one became empty.
//
// HTTP: DELETE /items/{id}?page=&search=&per_page=
func (h *ItemHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, q, err := h.rowRequest(w, r, user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.items.Delete(r.Context(), q, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	data := map[string]any{"User": user, "Page": page}
	if err := h.views.Fragment(w, http.StatusOK, "items/_table", data); err != nil {
		renderFailed(w, h.logger, err)
	}
}

func (h *ItemHandler) rowRequest(w http.ResponseWriter, r *http.Request, user *model.User) (int64, service.ItemQuery, error) {
	id, err := itemID(r)
	if err != nil {
		return 0, service.ItemQuery{}, err
	}
	if err := parseForm(w, r); err != nil {
		return 0, service.ItemQuery{}, err
	}
	q, err := listQuery(r, user.ID)
	return id, q, err
}

// readItemInput reads title/description from a JSON or form body. Fields
// that were not sent stay nil.
func readItemInput(w http.ResponseWriter, r *http.Request) (model.ItemUpdate, error) {
	var input model.ItemUpdate

	if isJSON(r) {
		// Page context still comes from the query string.
		if err := parseForm(w, r); err != nil {
			return input, err
		}
		return input, decodeJSON(w, r, &input)
	}

	if err := parseForm(w, r); err != nil {
		return input, err
	}
	input.Title = formField(r, "title")
	input.Description = formField(r, "description")
	return input, nil
}
