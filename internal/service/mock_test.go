package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/repository"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// mockStore keeps items and users in memory and implements the whole
// repository surface the services use. WithinTx works on a copy of the
// state and only publishes it when fn returns nil, so rollback behaviour
// is visible to the tests the same way it is with a real database.

type mockState struct {
	items  map[int64]model.Item
	users  map[string]model.User
	nextID int64
}

func (s *mockState) clone() *mockState {
	c := &mockState{
		items:  make(map[int64]model.Item, len(s.items)),
		users:  make(map[string]model.User, len(s.users)),
		nextID: s.nextID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

type mockStore struct {
	state *mockState
	txs   int

	// failCount / failList make the next Count / List call fail.
	failCount error
	failList  error
}

func newMockStore() *mockStore {
	return &mockStore{state: &mockState{
		items: make(map[int64]model.Item),
		users: make(map[string]model.User),
	}}
}

func (m *mockStore) WithinTx(_ context.Context, fn func(repository.Session) error) error {
	m.txs++
	work := m.state.clone()
	if err := fn(&mockSession{store: m, state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type mockSession struct {
	store *mockStore
	state *mockState
}

func (s *mockSession) Items() repository.ItemRepository { return &mockItems{s} }
func (s *mockSession) Users() repository.UserRepository { return &mockUsers{s} }

type mockItems struct{ *mockSession }

// asciiLower folds like SQLite's LOWER: ASCII letters only.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

func (m *mockItems) matching(ownerID string, filter repository.ItemFilter) []model.Item {
	needle := asciiLower(strings.TrimSpace(filter.Search))
	var out []model.Item
	for _, it := range m.state.items {
		if it.OwnerID != ownerID {
			continue
		}
		if needle != "" && !strings.Contains(asciiLower(it.Title), needle) {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b model.Item) int { return int(b.ID - a.ID) })
	return out
}

func (m *mockItems) Count(_ context.Context, ownerID string, filter repository.ItemFilter) (int, error) {
	if err := m.store.failCount; err != nil {
		return 0, err
	}
	return len(m.matching(ownerID, filter)), nil
}

func (m *mockItems) List(_ context.Context, ownerID string, filter repository.ItemFilter, opts repository.ListOptions) ([]model.Item, error) {
	if err := m.store.failList; err != nil {
		return nil, err
	}
	all := m.matching(ownerID, filter)
	if opts.Offset >= len(all) {
		return []model.Item{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (m *mockItems) GetByIDAndOwner(_ context.Context, id int64, ownerID string) (*model.Item, error) {
	it, ok := m.state.items[id]
	if !ok || it.OwnerID != ownerID {
		return nil, apperror.NotFound("item", id)
	}
	return &it, nil
}

func (m *mockItems) Create(_ context.Context, item *model.Item) error {
	m.state.nextID++
	item.ID = m.state.nextID
	m.state.items[item.ID] = *item
	return nil
}

func (m *mockItems) Update(_ context.Context, item *model.Item) error {
	cur, ok := m.state.items[item.ID]
	if !ok || cur.OwnerID != item.OwnerID {
		return apperror.NotFound("item", item.ID)
	}
	m.state.items[item.ID] = *item
	return nil
}

func (m *mockItems) Delete(_ context.Context, id int64, ownerID string) error {
	cur, ok := m.state.items[id]
	if !ok || cur.OwnerID != ownerID {
		return apperror.NotFound("item", id)
	}
	delete(m.state.items, id)
	return nil
}

type mockUsers struct{ *mockSession }

func (m *mockUsers) Create(_ context.Context, user *model.User) error {
	for _, u := range m.state.users {
		if u.Email == user.Email {
			return apperror.Conflict("user", "email already registered")
		}
	}
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	m.state.users[user.ID] = *user
	return nil
}

func (m *mockUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.state.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (m *mockUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.state.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUsers) List(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	out := make([]model.User, 0, len(m.state.users))
	for _, u := range m.state.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b model.User) int { return strings.Compare(a.ID, b.ID) })
	if opts.Offset >= len(out) {
		return []model.User{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockUsers) Update(_ context.Context, user *model.User) error {
	if _, ok := m.state.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	for id, u := range m.state.users {
		if id != user.ID && u.Email == user.Email {
			return apperror.Conflict("user", "email already registered")
		}
	}
	m.state.users[user.ID] = *user
	return nil
}

func (m *mockUsers) Delete(_ context.Context, id string) error {
	if _, ok := m.state.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(m.state.users, id)
	for k, it := range m.state.items {
		if it.OwnerID == id {
			delete(m.state.items, k)
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
