package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ashureev/wabcast/internal/domain"
	"github.com/containerd/errdefs"
)

type fakeRepo struct {
	accounts map[string]*domain.Account
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[string]*domain.Account)}
}

func (r *fakeRepo) GetAccount(ctx context.Context, email string) (*domain.Account, error) {
	if a, ok := r.accounts[email]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	if _, ok := r.accounts[account.Email]; ok {
		return fmt.Errorf("account %s: %w", account.Email, errdefs.ErrConflict)
	}
	copied := *account
	r.accounts[account.Email] = &copied
	return nil
}

func (r *fakeRepo) UpdateAccountActive(ctx context.Context, email string, active bool) error {
	a, ok := r.accounts[email]
	if !ok {
		return fmt.Errorf("account %s: %w", email, errdefs.ErrNotFound)
	}
	a.Active = active
	return nil
}

func (r *fakeRepo) AppendLogEntry(ctx context.Context, entry *domain.LogEntry) error { return nil }

func (r *fakeRepo) ListLogEntries(ctx context.Context, email string) ([]*domain.LogEntry, error) {
	return []*domain.LogEntry{}, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

func TestRegisterHashesPassword(t *testing.T) {
	repo := newFakeRepo()
	dir := New(repo)

	if err := dir.Register(context.Background(), "a@example.com", "491511234", "hunter2"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	account := repo.accounts["a@example.com"]
	if account == nil {
		t.Fatal("account not stored")
	}
	if account.PasswordHash == "hunter2" || account.PasswordHash == "" {
		t.Error("password must be stored as a hash, never in the clear")
	}
	if !account.Active {
		t.Error("new account must be active")
	}
	if !account.SessionExpires.After(account.SessionStart) {
		t.Error("session expiry must be later than session start")
	}
	window := account.SessionExpires.Sub(account.SessionStart)
	if window != SubscriptionWindow {
		t.Errorf("window = %v, want %v", window, SubscriptionWindow)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	repo := newFakeRepo()
	dir := New(repo)

	if err := dir.Register(context.Background(), "a@example.com", "1", "pw"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := dir.Register(context.Background(), "a@example.com", "2", "pw2")
	if !errdefs.IsConflict(err) {
		t.Errorf("second Register: err = %v, want conflict", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	repo := newFakeRepo()
	dir := New(repo)

	for _, tt := range []struct{ email, phone, password string }{
		{"", "1", "pw"},
		{"a@example.com", "", "pw"},
		{"a@example.com", "1", ""},
	} {
		err := dir.Register(context.Background(), tt.email, tt.phone, tt.password)
		if !errdefs.IsInvalidArgument(err) {
			t.Errorf("Register(%q, %q, ...): err = %v, want invalid argument", tt.email, tt.phone, err)
		}
	}
}

func TestLogin(t *testing.T) {
	repo := newFakeRepo()
	dir := New(repo)

	if err := dir.Register(context.Background(), "a@example.com", "1", "hunter2"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	account, err := dir.Login(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if account.Email != "a@example.com" {
		t.Errorf("email = %q", account.Email)
	}

	if _, err := dir.Login(context.Background(), "a@example.com", "wrong"); !errdefs.IsUnauthorized(err) {
		t.Errorf("wrong password: err = %v, want unauthorized", err)
	}
	if _, err := dir.Login(context.Background(), "nobody@example.com", "hunter2"); !errdefs.IsUnauthorized(err) {
		t.Errorf("unknown email: err = %v, want unauthorized", err)
	}
}

func TestLoginExpiredFlipsInactive(t *testing.T) {
	repo := newFakeRepo()
	dir := New(repo)

	if err := dir.Register(context.Background(), "a@example.com", "1", "hunter2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	repo.accounts["a@example.com"].SessionExpires = time.Now().Add(-time.Hour)

	_, err := dir.Login(context.Background(), "a@example.com", "hunter2")
	if !errdefs.IsPermissionDenied(err) {
		t.Fatalf("expired login: err = %v, want permission denied", err)
	}
	if repo.accounts["a@example.com"].Active {
		t.Error("expired login must flip the account inactive")
	}

	// A later login with the correct password still fails.
	_, err = dir.Login(context.Background(), "a@example.com", "hunter2")
	if !errdefs.IsPermissionDenied(err) {
		t.Errorf("login after deactivation: err = %v, want permission denied", err)
	}
}

func TestCheckActive(t *testing.T) {
	repo := newFakeRepo()
	dir := New(repo)

	if err := dir.CheckActive(context.Background(), "ghost@example.com"); !errdefs.IsUnauthorized(err) {
		t.Errorf("unknown account: err = %v, want unauthorized", err)
	}

	if err := dir.Register(context.Background(), "a@example.com", "1", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := dir.CheckActive(context.Background(), "a@example.com"); err != nil {
		t.Errorf("active account: %v", err)
	}

	// Deactivation is picked up on the very next call, not cached.
	repo.accounts["a@example.com"].Active = false
	if err := dir.CheckActive(context.Background(), "a@example.com"); !errdefs.IsPermissionDenied(err) {
		t.Errorf("deactivated account: err = %v, want permission denied", err)
	}

	repo.accounts["a@example.com"].Active = true
	repo.accounts["a@example.com"].SessionExpires = time.Now().Add(-time.Minute)
	if err := dir.CheckActive(context.Background(), "a@example.com"); !errdefs.IsPermissionDenied(err) {
		t.Errorf("expired account: err = %v, want permission denied", err)
	}
}
