package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/repository"
)

// userRepo is the users table, bound to one transaction.
type userRepo struct {
	q       querier
	dialect Dialect
}

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, email, hashed_password, is_active, is_superuser, is_verified, created_at`

// Create inserts user, generating its id and creation time when unset.
// A second account for the same email is reported as Conflict.
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Email,
		user.HashedPassword,
		user.IsActive,
		user.IsSuperuser,
		user.IsVerified,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email already registered")
		}
		return fmt.Errorf("sqlstore: creating user: %w", err)
	}
	return nil
}

// GetByID returns the user with id, or NotFound.
func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`),
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByEmail looks a user up by (already normalised) email.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`),
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", err)
	}
	return user, nil
}

// List returns users in creation order.
func (r *userRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx,
		r.dialect.rebind(`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`),
		opts.Limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating users: %w", err)
	}
	return users, nil
}

// Update writes every mutable column. id and created_at never change.
func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`UPDATE users
		 SET email = ?, hashed_password = ?, is_active = ?, is_superuser = ?, is_verified = ?
		 WHERE id = ?`),
		user.Email,
		user.HashedPassword,
		user.IsActive,
		user.IsSuperuser,
		user.IsVerified,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email already registered")
		}
		return fmt.Errorf("sqlstore: updating user %s: %w", user.ID, err)
	}
	return expectAffected(result, apperror.NotFound("user", user.ID))
}

// Delete removes the user; their items go with them (ON DELETE CASCADE).
func (r *userRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx,
		r.dialect.rebind(`DELETE FROM users WHERE id = ?`),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %s: %w", id, err)
	}
	return expectAffected(result, apperror.NotFound("user", id))
}

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(
		&u.ID,
		&u.Email,
		&u.HashedPassword,
		&u.IsActive,
		&u.IsSuperuser,
		&u.IsVerified,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
