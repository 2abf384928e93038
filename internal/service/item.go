// Package service contains the business rules of the application.
//
// LAYERS:
//
//	Handler (HTTP)     → parses requests, picks a template, writes responses
//	Service (business) → validates, enforces ownership, computes page views
//	Repository (data)  → SQL
//
// Services take the repository.Store interface, never a concrete database,
// so tests inject a hand-written in-memory Store. Each public method runs in
// exactly one Store.WithinTx call: a request that counts, fetches and
// mutates sees one consistent snapshot and commits or rolls back as a unit.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/pagination"
	"github.com/sakif/htmx-starter/internal/repository"
)

const MaxTitleLength = 100

// ItemQuery is "which page of whose items": the inputs of a listing.
type ItemQuery struct {
	OwnerID string
	Search  string
	Page    int
	PerPage int
}

func (q ItemQuery) params() pagination.Params {
	return pagination.Params{Page: q.Page, PerPage: q.PerPage}
}

func (q ItemQuery) filter() repository.ItemFilter {
	return repository.ItemFilter{Search: q.Search}
}

// ItemPage is one rendered page of items together with its navigation
// metadata. The embedded View exposes Page, TotalPages, HasNext and friends
// directly to the templates.
type ItemPage struct {
	pagination.View
	Items  []model.Item
	Search string
}

// ItemService implements the paginated item listing and its mutations.
type ItemService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewItemService(store repository.Store, logger *slog.Logger) *ItemService {
	return &ItemService{store: store, logger: logger}
}

// List computes the requested page of the owner's items.
//
// A page past the end is not an error: the result has no items, HasNext is
// false and StartItem/EndItem are 0.
func (s *ItemService) List(ctx context.Context, q ItemQuery) (*ItemPage, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	var page *ItemPage
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		page, err = loadPage(ctx, tx.Items(), q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return page, nil
}

// Get returns one of the owner's items (edit form, cancel-edit row).
func (s *ItemService) Get(ctx context.Context, ownerID string, id int64) (*model.Item, error) {
	var item *model.Item
	err := s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		item, err = tx.Items().GetByIDAndOwner(ctx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Create stores a new item for q.OwnerID and returns it together with page 1
// of the listing, keeping q's search and page size. The new item is the
// newest, so page 1 is where it shows up.
func (s *ItemService) Create(ctx context.Context, q ItemQuery, title, description string) (*model.Item, *ItemPage, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, nil, err
	}
	q.Page = 1
	if q, err = normalizeQuery(q); err != nil {
		return nil, nil, err
	}

	item := &model.Item{
		Title:       title,
		Description: strings.TrimSpace(description),
		OwnerID:     q.OwnerID,
	}

	var page *ItemPage
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		if err := tx.Items().Create(ctx, item); err != nil {
			return err
		}
		var err error
		page, err = loadPage(ctx, tx.Items(), q)
		return err
	})
	if err != nil {
		s.logger.Error("failed to create item",
			slog.String("owner", q.OwnerID),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("creating item: %w", err)
	}

	s.logger.Info("item created",
		slog.Int64("id", item.ID),
		slog.String("owner", item.OwnerID),
	)
	return item, page, nil
}

// Update applies the non-nil fields of upd to one of the owner's items.
//
// The lookup is filtered by owner, so another user's id is NotFound and
// nothing is written. A supplied empty description clears it.
func (s *ItemService) Update(ctx context.Context, ownerID string, id int64, upd model.ItemUpdate) (*model.Item, error) {
	if upd.Title != nil {
		title, err := validateTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		upd.Title = &title
	}

	var item *model.Item
	err := s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		item, err = tx.Items().GetByIDAndOwner(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if upd.Empty() {
			return nil
		}

		if upd.Title != nil {
			item.Title = *upd.Title
		}
		if upd.Description != nil {
			item.Description = strings.TrimSpace(*upd.Description)
		}
		return tx.Items().Update(ctx, item)
	})
	if err != nil {
		if !apperror.IsNotFound(err) {
			s.logger.Error("failed to update item",
				slog.Int64("id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("updating item: %w", err)
	}

	s.logger.Info("item updated", slog.Int64("id", id), slog.String("owner", ownerID))
	return item, nil
}

// Delete removes one of the owner's items and returns the listing for q,
// with q.Page pulled back to the last page if the delete emptied it.
func (s *ItemService) Delete(ctx context.Context, q ItemQuery, id int64) (*ItemPage, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	var page *ItemPage
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		items := tx.Items()
		if err := items.Delete(ctx, id, q.OwnerID); err != nil {
			return err
		}

		total, err := items.Count(ctx, q.OwnerID, q.filter())
		if err != nil {
			return err
		}
		q.Page = pagination.ClampPage(q.Page, total, q.PerPage)

		page, err = fetchPage(ctx, items, q, total)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("deleting item: %w", err)
	}

	s.logger.Info("item deleted", slog.Int64("id", id), slog.String("owner", q.OwnerID))
	return page, nil
}

// loadPage counts then fetches; both run on the same Session so they see
// the same rows.
func loadPage(ctx context.Context, items repository.ItemRepository, q ItemQuery) (*ItemPage, error) {
	total, err := items.Count(ctx, q.OwnerID, q.filter())
	if err != nil {
		return nil, err
	}
	return fetchPage(ctx, items, q, total)
}

func fetchPage(ctx context.Context, items repository.ItemRepository, q ItemQuery, total int) (*ItemPage, error) {
	params := q.params()
	page := &ItemPage{
		View:   pagination.Compute(total, params),
		Items:  []model.Item{},
		Search: q.Search,
	}

	// Nothing to fetch past the last row.
	if params.Offset() >= total {
		return page, nil
	}

	rows, err := items.List(ctx, q.OwnerID, q.filter(), repository.ListOptions{
		Limit:  params.PerPage,
		Offset: params.Offset(),
	})
	if err != nil {
		return nil, err
	}
	page.Items = rows
	return page, nil
}

// normalizeQuery trims the search term and checks the paging inputs.
func normalizeQuery(q ItemQuery) (ItemQuery, error) {
	if q.OwnerID == "" {
		return q, apperror.ValidationFailed("owner_id", "owner is required")
	}
	if err := q.params().Validate(); err != nil {
		return q, err
	}
	q.Search = strings.TrimSpace(q.Search)
	return q, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}
