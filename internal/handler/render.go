// Package handler contains the HTTP handlers of the application.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, query, form or JSON body)
//  2. Call the service layer
//  3. Write the response: a full page, an htmx fragment, or JSON
//
// FULL PAGE OR FRAGMENT?
// Requests sent by htmx carry "HX-Request: true" and get only the fragment
// that is swapped into the page (e.g. items/_table). The same URL opened
// directly in the browser renders the whole page around that fragment.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/pagination"
	"github.com/sakif/htmx-starter/internal/service"
)

// pageNames are the templates that render inside base.html. Each lives in
// <name>.html and defines "title" and "content".
var pageNames = []string{
	"index",
	"auth/login",
	"auth/register",
	"items/index",
	"profile",
}

// Renderer holds the parsed templates. Parsing happens once at startup;
// executing a parsed template is safe for concurrent use.
type Renderer struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

// NewRenderer parses base.html, every fragment (*/_*.html) and the pages
// from fsys.
//
// TEMPLATE COMPOSITION:
// Every page defines "content", so pages cannot share one template set.
// Each page gets its own clone of the common set (base + fragments) and
// its file is parsed into that clone.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	common, err := template.New("common").Funcs(templateFuncs).ParseFS(fsys, "base.html", "*/_*.html")
	if err != nil {
		return nil, fmt.Errorf("handler: parsing layout and fragments: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := common.Clone()
		if err != nil {
			return nil, fmt.Errorf("handler: cloning templates for %s: %w", name, err)
		}
		if pages[name], err = clone.ParseFS(fsys, name+".html"); err != nil {
			return nil, fmt.Errorf("handler: parsing page %s: %w", name, err)
		}
	}

	return &Renderer{pages: pages, fragments: common}, nil
}

// Page renders the named page inside the base layout.
func (v *Renderer) Page(w http.ResponseWriter, status int, name string, data any) error {
	tmpl, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("handler: unknown page %q", name)
	}
	return execute(w, status, tmpl, "base", data)
}

// Fragment renders one partial template, e.g. "items/_table".
func (v *Renderer) Fragment(w http.ResponseWriter, status int, name string, data any) error {
	return execute(w, status, v.fragments, name, data)
}

// execute renders into a buffer first, so a template error still leaves
// the response untouched and the caller can send a clean 500.
func execute(w http.ResponseWriter, status int, tmpl *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("handler: rendering %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// itemRow is the data of one table row: the item plus the listing it was
// shown in, so edit/cancel/delete can come back to the same page.
type itemRow struct {
	Item    model.Item
	Page    int
	PerPage int
	Search  string
}

func newItemRow(item model.Item, q service.ItemQuery) itemRow {
	return itemRow{Item: item, Page: q.Page, PerPage: q.PerPage, Search: q.Search}
}

var templateFuncs = template.FuncMap{
	"rowView": func(p *service.ItemPage, item model.Item) itemRow {
		return itemRow{Item: item, Page: p.Page, PerPage: p.PerPage, Search: p.Search}
	},
	"withPage":       withPage,
	"perPageOptions": func() []int { return []int{5, pagination.DefaultPerPage, 25, 50, pagination.MaxPerPage} },
}

// withPage appends the listing parameters to path.
func withPage(path string, page, perPage int, search string) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if search != "" {
		q.Set("search", search)
	}
	return path + "?" + q.Encode()
}
