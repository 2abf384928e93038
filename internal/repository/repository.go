// Package repository declares the persistence interfaces the services depend on.
//
// TRANSACTION SCOPE:
// Services never hold a connection. Each operation asks the Store for a
// transaction-scoped Session, does all of its reads and writes through it, and
// lets WithinTx commit (fn returned nil) or roll back (fn returned an error or
// panicked). The Session must not be used after fn returns.
package repository

import (
	"context"

	"github.com/sakif/htmx-starter/internal/model"
)

// ListOptions is a LIMIT/OFFSET window.
type ListOptions struct {
	Limit  int
	Offset int
}

// ItemFilter narrows an owner's items. An empty Search matches everything;
// otherwise it is a case-insensitive substring match on the title.
type ItemFilter struct {
	Search string
}

// Store hands out transaction-scoped sessions.
type Store interface {
	WithinTx(ctx context.Context, fn func(Session) error) error
}

// Session is the set of repositories bound to one transaction.
type Session interface {
	Items() ItemRepository
	Users() UserRepository
}

// ItemRepository reads and writes items. Every method is scoped by owner.
type ItemRepository interface {
	Count(ctx context.Context, ownerID string, filter ItemFilter) (int, error)
	List(ctx context.Context, ownerID string, filter ItemFilter, opts ListOptions) ([]model.Item, error)
	GetByIDAndOwner(ctx context.Context, id int64, ownerID string) (*model.Item, error)
	Create(ctx context.Context, item *model.Item) error
	Update(ctx context.Context, item *model.Item) error
	Delete(ctx context.Context, id int64, ownerID string) error
}

// UserRepository reads and writes user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
}
