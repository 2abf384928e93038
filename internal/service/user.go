package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/auth"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/repository"
)

const (
	MaxEmailLength    = 320
	MinPasswordLength = 3
	DefaultUserLimit  = 50
)

// UserService covers profile edits and the superuser account endpoints.
type UserService struct {
	store     repository.Store
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(store repository.Store, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{store: store, passwords: passwords, logger: logger}
}

// UpdateProfile changes the caller's own email and/or password. Any flag
// fields in upd are ignored.
func (s *UserService) UpdateProfile(ctx context.Context, current *model.User, upd model.UserUpdate) (*model.User, error) {
	return s.update(ctx, current.ID, upd.SelfService())
}

// List returns accounts in creation order. Superuser only.
func (s *UserService) List(ctx context.Context, actor *model.User, limit, offset int) ([]model.User, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultUserLimit {
		limit = DefaultUserLimit
	}

	var users []model.User
	err := s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		users, err = tx.Users().List(ctx, repository.ListOptions{Limit: limit, Offset: max(offset, 0)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Get returns any account. Superuser only.
func (s *UserService) Get(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}

	var user *model.User
	err := s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		user, err = tx.Users().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Update changes any account, including its flags. Superuser only.
func (s *UserService) Update(ctx context.Context, actor *model.User, id string, upd model.UserUpdate) (*model.User, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	return s.update(ctx, id, upd)
}

// Delete removes an account and, through the foreign key, its items.
// Superuser only.
func (s *UserService) Delete(ctx context.Context, actor *model.User, id string) error {
	if err := requireSuperuser(actor); err != nil {
		return err
	}

	err := s.store.WithinTx(ctx, func(tx repository.Session) error {
		return tx.Users().Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	s.logger.Info("user deleted", slog.String("id", id), slog.String("by", actor.ID))
	return nil
}

// CreateSuperuser registers an active, verified superuser. An existing
// account with the same email is promoted instead, and its password reset.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		existing, err := tx.Users().GetByEmail(ctx, email)
		switch {
		case err == nil:
			existing.HashedPassword = hashed
			existing.IsActive, existing.IsSuperuser, existing.IsVerified = true, true, true
			user = existing
			return tx.Users().Update(ctx, existing)
		case apperror.IsNotFound(err):
			user = &model.User{
				Email:          email,
				HashedPassword: hashed,
				IsActive:       true,
				IsSuperuser:    true,
				IsVerified:     true,
			}
			return tx.Users().Create(ctx, user)
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("creating superuser: %w", err)
	}

	s.logger.Info("superuser ready", slog.String("id", user.ID), slog.String("email", user.Email))
	return user, nil
}

func (s *UserService) update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	var (
		email  string
		hashed string
		err    error
	)
	if upd.Email != nil {
		if email, err = normalizeEmail(*upd.Email); err != nil {
			return nil, err
		}
	}
	if upd.Password != nil {
		if hashed, err = s.hashPassword(*upd.Password); err != nil {
			return nil, err
		}
	}

	var user *model.User
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		user, err = tx.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if upd.Email != nil && email != user.Email {
			user.Email = email
			// A changed address has not been verified yet.
			user.IsVerified = false
		}
		if upd.Password != nil {
			user.HashedPassword = hashed
		}
		if upd.IsActive != nil {
			user.IsActive = *upd.IsActive
		}
		if upd.IsSuperuser != nil {
			user.IsSuperuser = *upd.IsSuperuser
		}
		if upd.IsVerified != nil {
			user.IsVerified = *upd.IsVerified
		}
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info("user updated", slog.String("id", id))
	return user, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	return s.passwords.Hash(password)
}

func requireSuperuser(actor *model.User) error {
	if actor == nil || !actor.IsSuperuser {
		return apperror.Forbidden("superuser privileges required")
	}
	return nil
}

// normalizeEmail trims and lower-cases an address and checks its shape.
// Deliverability is not checked.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return "", apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}
