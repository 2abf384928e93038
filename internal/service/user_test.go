package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/auth"
	"github.com/sakif/htmx-starter/internal/model"
)

func newTestUserService(t *testing.T) (*UserService, *mockStore) {
	t.Helper()
	store := newMockStore()
	return NewUserService(store, auth.NewPasswordServiceWithCost(4), discardLogger()), store
}

func addUser(t *testing.T, store *mockStore, email string, superuser bool) *model.User {
	t.Helper()
	u := model.User{ID: "user-" + email, Email: email, HashedPassword: "x", IsActive: true, IsSuperuser: superuser, IsVerified: true}
	store.state.users[u.ID] = u
	return &u
}

// =========================================================================
// PROFILE
// =========================================================================

func TestUpdateProfile_EmailAndPassword(t *testing.T) {
	svc, store := newTestUserService(t)
	me := addUser(t, store, "me@example.com", false)

	got, err := svc.UpdateProfile(context.Background(), me, model.UserUpdate{
		Email:    ptr(" New@Example.com "),
		Password: ptr("new-secret"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Email != "new@example.com" || got.IsVerified {
		t.Errorf("got email %q verified %v, want new@example.com unverified", got.Email, got.IsVerified)
	}
	if err := auth.NewPasswordServiceWithCost(4).Verify(store.state.users[me.ID].HashedPassword, "new-secret"); err != nil {
		t.Errorf("stored password does not verify: %v", err)
	}
}

func TestUpdateProfile_SameEmailKeepsVerified(t *testing.T) {
	svc, store := newTestUserService(t)
	me := addUser(t, store, "me@example.com", false)

	got, err := svc.UpdateProfile(context.Background(), me, model.UserUpdate{Email: ptr("me@example.com")})
	if err != nil || !got.IsVerified {
		t.Errorf("UpdateProfile() = %+v, %v; want still verified", got, err)
	}
}

func TestUpdateProfile_CannotPromoteSelf(t *testing.T) {
	svc, store := newTestUserService(t)
	me := addUser(t, store, "me@example.com", false)

	got, err := svc.UpdateProfile(context.Background(), me, model.UserUpdate{IsSuperuser: ptr(true)})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.IsSuperuser || store.state.users[me.ID].IsSuperuser {
		t.Error("a user promoted themselves to superuser")
	}
}

func TestUpdateProfile_EmailTaken(t *testing.T) {
	svc, store := newTestUserService(t)
	me := addUser(t, store, "me@example.com", false)
	addUser(t, store, "taken@example.com", false)

	_, err := svc.UpdateProfile(context.Background(), me, model.UserUpdate{Email: ptr("taken@example.com")})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateProfile() error = %v, want Conflict", err)
	}
}

func TestUpdateProfile_ShortPassword(t *testing.T) {
	svc, store := newTestUserService(t)
	me := addUser(t, store, "me@example.com", false)

	_, err := svc.UpdateProfile(context.Background(), me, model.UserUpdate{Password: ptr("ab")})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdateProfile() error = %v, want validation error", err)
	}
}

// =========================================================================
// SUPERUSER ENDPOINTS
// =========================================================================

func TestAdmin_ForbiddenForRegularUsers(t *testing.T) {
	svc, store := newTestUserService(t)
	me := addUser(t, store, "me@example.com", false)
	other := addUser(t, store, "other@example.com", false)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["Get"] = svc.Get(ctx, me, other.ID)
	_, checks["Update"] = svc.Update(ctx, me, other.ID, model.UserUpdate{IsActive: ptr(false)})
	_, checks["List"] = svc.List(ctx, me, 10, 0)
	checks["Delete"] = svc.Delete(ctx, me, other.ID)
	_, checks["nil actor"] = svc.Get(ctx, nil, other.ID)

	for op, err := range checks {
		if !errors.Is(err, apperror.ErrForbidden) {
			t.Errorf("%s error = %v, want Forbidden", op, err)
		}
	}
	if !store.state.users[other.ID].IsActive {
		t.Error("forbidden update was applied")
	}
}

func TestAdmin_UpdateFlagsAndDelete(t *testing.T) {
	svc, store := newTestUserService(t)
	admin := addUser(t, store, "admin@example.com", true)
	other := addUser(t, store, "other@example.com", false)
	store.state.items[1] = model.Item{ID: 1, Title: "t", OwnerID: other.ID}
	ctx := context.Background()

	got, err := svc.Update(ctx, admin, other.ID, model.UserUpdate{IsActive: ptr(false), IsSuperuser: ptr(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.IsActive || !got.IsSuperuser {
		t.Errorf("Update() flags = active %v super %v", got.IsActive, got.IsSuperuser)
	}

	fetched, err := svc.Get(ctx, admin, other.ID)
	if err != nil || fetched.IsActive {
		t.Errorf("Get() = %+v, %v", fetched, err)
	}

	users, err := svc.List(ctx, admin, 0, 0)
	if err != nil || len(users) != 2 {
		t.Errorf("List() = %d users, %v; want 2", len(users), err)
	}

	if err := svc.Delete(ctx, admin, other.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.state.items[1]; ok {
		t.Error("deleting a user must delete their items")
	}
	if err := svc.Delete(ctx, admin, other.ID); !apperror.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want NotFound", err)
	}
}

// =========================================================================
// CreateSuperuser
// =========================================================================

func TestCreateSuperuser_NewAndPromote(t *testing.T) {
	svc, store := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.CreateSuperuser(ctx, "Root@Example.com", "toor-pass")
	if err != nil {
		t.Fatalf("CreateSuperuser() error = %v", err)
	}
	if !created.IsSuperuser || !created.IsActive || !created.IsVerified || created.Email != "root@example.com" {
		t.Errorf("CreateSuperuser() = %+v", created)
	}

	plain := addUser(t, store, "plain@example.com", false)
	promoted, err := svc.CreateSuperuser(ctx, "plain@example.com", "new-pass")
	if err != nil {
		t.Fatalf("CreateSuperuser(existing) error = %v", err)
	}
	if promoted.ID != plain.ID || !store.state.users[plain.ID].IsSuperuser {
		t.Errorf("existing account was not promoted: %+v", promoted)
	}
	if len(store.state.users) != 2 {
		t.Errorf("users = %d, want 2", len(store.state.users))
	}
}
