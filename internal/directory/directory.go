// Package directory implements account registration, login and the
// per-request subscription re-validation guard.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/wabcast/internal/domain"
	"github.com/ashureev/wabcast/internal/store"
	"github.com/containerd/errdefs"
	"golang.org/x/crypto/bcrypt"
)

// SubscriptionWindow is the validity window granted on registration.
const SubscriptionWindow = 30 * 24 * time.Hour

const bcryptCost = 10

// Directory authenticates accounts and enforces their subscription window.
type Directory struct {
	repo store.Repository
}

// New creates a Directory backed by the given repository.
func New(repo store.Repository) *Directory {
	return &Directory{repo: repo}
}

// Register creates a new account with a hashed password and a fresh
// 30-day subscription window.
func (d *Directory) Register(ctx context.Context, email, phone, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || phone == "" || password == "" {
		return fmt.Errorf("email, phone and password are required: %w", errdefs.ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	account := &domain.Account{
		Email:          email,
		Phone:          phone,
		PasswordHash:   string(hash),
		Active:         true,
		SessionStart:   now,
		SessionExpires: now.Add(SubscriptionWindow),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := d.repo.CreateAccount(ctx, account); err != nil {
		return err
	}

	slog.Info("Account registered", "email", email)
	return nil
}

// Login verifies credentials and the subscription window. An expired or
// deactivated account is flipped inactive and rejected; the caller must
// renew out of band.
func (d *Directory) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := d.repo.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("invalid email or password: %w", errdefs.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", errdefs.ErrUnauthenticated)
	}

	now := time.Now()
	if !account.Usable(now) {
		if account.Active {
			if err := d.repo.UpdateAccountActive(ctx, email, false); err != nil {
				return nil, fmt.Errorf("deactivate expired account: %w", err)
			}
		}
		return nil, fmt.Errorf("subscription expired: %w", errdefs.ErrPermissionDenied)
	}

	slog.Info("Account logged in", "email", email)
	return account, nil
}

// CheckActive re-validates an account on every protected call. A session
// token must not outlive the business validity window even if the token
// itself has not expired.
func (d *Directory) CheckActive(ctx context.Context, email string) error {
	account, err := d.repo.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %s: %w", email, errdefs.ErrUnauthenticated)
	}
	if !account.Usable(time.Now()) {
		return fmt.Errorf("session expired or deactivated: %w", errdefs.ErrPermissionDenied)
	}
	return nil
}
