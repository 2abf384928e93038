package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/repository"
)

// itemRepo is the items table, bound to one transaction.
type itemRepo struct {
	q       querier
	dialect Dialect
}

var _ repository.ItemRepository = (*itemRepo)(nil)

const itemColumns = `id, title, description, owner_id`

// likeEscaper makes user input match literally inside a LIKE pattern:
// "50%" must find "50%" and not everything starting with "50".
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// itemWhere builds the owner (+ optional title search) predicate shared by
// Count and List, so both always agree on what "matching" means.
//
// CASE-INSENSITIVE SEARCH:
// LOWER(title) LIKE LOWER(pattern) behaves the same on SQLite and PostgreSQL,
// unlike ILIKE (PostgreSQL only) or plain LIKE (case-insensitive on SQLite
// only). Both sides are folded by the database so the title and the term
// always go through the same LOWER; SQLite's folds ASCII letters only.
func itemWhere(ownerID string, filter repository.ItemFilter) (string, []any) {
	where := `WHERE owner_id = ?`
	args := []any{ownerID}

	if search := strings.TrimSpace(filter.Search); search != "" {
		where += ` AND LOWER(title) LIKE LOWER(?) ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
	}

	return where, args
}

// Count returns how many of the owner's items match filter.
func (r *itemRepo) Count(ctx context.Context, ownerID string, filter repository.ItemFilter) (int, error) {
	where, args := itemWhere(ownerID, filter)

	var total int
	err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT COUNT(*) FROM items `+where),
		args...,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting items: %w", err)
	}
	return total, nil
}

// List returns one LIMIT/OFFSET window of the owner's matching items,
// newest first. id DESC gives a stable order, so a page never shows a row
// twice or skips one between requests unless rows were added or removed.
func (r *itemRepo) List(ctx context.Context, ownerID string, filter repository.ItemFilter, opts repository.ListOptions) ([]model.Item, error) {
	where, args := itemWhere(ownerID, filter)
	args = append(args, opts.Limit, max(opts.Offset, 0))

	rows, err := r.q.QueryContext(ctx,
		r.dialect.rebind(`SELECT `+itemColumns+` FROM items `+where+` ORDER BY id DESC LIMIT ? OFFSET ?`),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing items: %w", err)
	}
	defer rows.Close()

	items := make([]model.Item, 0, opts.Limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning item row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating items: %w", err)
	}

	return items, nil
}

// GetByIDAndOwner is the single filtered lookup used before every mutation.
// "Does not exist" and "belongs to someone else" both come back as NotFound.
func (r *itemRepo) GetByIDAndOwner(ctx context.Context, id int64, ownerID string) (*model.Item, error) {
	row := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+itemColumns+` FROM items WHERE id = ? AND owner_id = ?`),
		id, ownerID,
	)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("sqlstore: getting item %d: %w", id, err)
	}
	return item, nil
}

// Create inserts item and fills in the id assigned by the database.
func (r *itemRepo) Create(ctx context.Context, item *model.Item) error {
	err := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`INSERT INTO items (title, description, owner_id) VALUES (?, ?, ?) RETURNING id`),
		item.Title, nullString(item.Description), item.OwnerID,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: creating item: %w", err)
	}
	return nil
}

// Update writes title and description. The owner is part of the WHERE
// clause, so an update can never move an item to another user.
func (r *itemRepo) Update(ctx context.Context, item *model.Item) error {
	result, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`UPDATE items SET title = ?, description = ? WHERE id = ? AND owner_id = ?`),
		item.Title, nullString(item.Description), item.ID, item.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating item %d: %w", item.ID, err)
	}
	return expectAffected(result, apperror.NotFound("item", item.ID))
}

// Delete removes one of the owner's items.
func (r *itemRepo) Delete(ctx context.Context, id int64, ownerID string) error {
	result, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`DELETE FROM items WHERE id = ? AND owner_id = ?`),
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting item %d: %w", id, err)
	}
	return expectAffected(result, apperror.NotFound("item", id))
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(s rowScanner) (*model.Item, error) {
	var (
		item        model.Item
		description sql.NullString
	)
	if err := s.Scan(&item.ID, &item.Title, &description, &item.OwnerID); err != nil {
		return nil, err
	}
	item.Description = description.String
	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// expectAffected turns "0 rows affected" into notFound.
func expectAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
