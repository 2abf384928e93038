package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/htmx-starter/internal/apperror"
	"github.com/sakif/htmx-starter/internal/auth"
	"github.com/sakif/htmx-starter/internal/model"
	"github.com/sakif/htmx-starter/internal/repository"
)

// Error codes shown to login and registration forms.
const (
	CodeBadCredentials = "LOGIN_BAD_CREDENTIALS"
	CodeUserExists     = "REGISTER_USER_ALREADY_EXISTS"
)

// ErrBadCredentials is returned for an unknown email, a wrong password and an
// inactive account alike, so the login form cannot be used to enumerate
// accounts.
var ErrBadCredentials = &apperror.AppError{
	Err:     apperror.ErrValidation,
	Message: CodeBadCredentials,
}

// AuthService handles registration and login.
//
//	AuthHandler → AuthService → Store (users)
//	                          ↘ PasswordService (bcrypt), TokenService (JWT)
//
// It never touches cookies or requests; the handler turns an AuthResult into
// a Set-Cookie header.
type AuthService struct {
	store     repository.Store
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the freshly issued token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an active, unverified, non-superuser account.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hashed, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}

	user := &model.User{
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
	}
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: CodeUserExists, Field: "email"}
		}
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.logger.Info("user registered", slog.String("id", user.ID), slog.String("email", user.Email))
	return user, nil
}

// Login checks email and password and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil || len(password) > auth.MaxPasswordBytes {
		return nil, ErrBadCredentials
	}

	var user *model.User
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		user, err = tx.Users().GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		if apperror.IsNotFound(err) {
			// Burn a hash so unknown emails take as long as wrong passwords.
			_, _ = s.passwords.Hash(password)
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("logging in: %w", err)
	}

	if err := s.passwords.Verify(user.HashedPassword, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.String("email", email))
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("logging in: %w", err)
	}
	if !user.IsActive {
		return nil, ErrBadCredentials
	}

	return s.issue(user)
}

// LoginWithGitHub signs in the account matching the GitHub email, creating
// a verified account with an unusable random password on first login.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}
	email, err := normalizeEmail(gh.Email)
	if err != nil {
		return nil, err
	}

	var (
		user    *model.User
		created bool
	)
	err = s.store.WithinTx(ctx, func(tx repository.Session) error {
		var err error
		user, err = tx.Users().GetByEmail(ctx, email)
		if err == nil || !apperror.IsNotFound(err) {
			return err
		}

		random, err := auth.RandomPassword()
		if err != nil {
			return err
		}
		hashed, err := s.passwords.Hash(random)
		if err != nil {
			return err
		}
		user = &model.User{
			Email:          email,
			HashedPassword: hashed,
			IsActive:       true,
			IsVerified:     true,
		}
		created = true
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: GitHub login (githubID=%d): %w", gh.ID, err)
	}
	if !user.IsActive {
		return nil, ErrBadCredentials
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
		slog.Bool("created", created),
	)
	return s.issue(user)
}

// UserByID loads the account behind a token subject. It satisfies
// auth.UserLoader.
func (s *AuthService) UserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.NotFound("user", id)
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

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
