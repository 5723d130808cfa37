package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/wabcast/internal/audit"
	"github.com/ashureev/wabcast/internal/domain"
	"github.com/containerd/errdefs"
)

type fakeSender struct {
	connected bool
	failOn    map[string]error
	sent      []string
}

func (s *fakeSender) IsConnected() bool {
	return s.connected
}

func (s *fakeSender) SendText(ctx context.Context, jid, text string) error {
	if err, ok := s.failOn[jid]; ok {
		return err
	}
	s.sent = append(s.sent, jid)
	return nil
}

type fakeRepo struct {
	entries   []*domain.LogEntry
	appendErr error
}

func (r *fakeRepo) GetAccount(ctx context.Context, email string) (*domain.Account, error) {
	return nil, nil
}

func (r *fakeRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	return nil
}

func (r *fakeRepo) UpdateAccountActive(ctx context.Context, email string, active bool) error {
	return nil
}

func (r *fakeRepo) AppendLogEntry(ctx context.Context, entry *domain.LogEntry) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRepo) ListLogEntries(ctx context.Context, email string) ([]*domain.LogEntry, error) {
	out := []*domain.LogEntry{}
	for _, e := range r.entries {
		if e.Email == email {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

func newTestDispatcher(sender *fakeSender, repo *fakeRepo) *Dispatcher {
	return NewDispatcher(sender, audit.NewLog(repo), time.Second)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234", "1234@s.whatsapp.net"},
		{"49151123456", "49151123456@s.whatsapp.net"},
		{"1234@s.whatsapp.net", "1234@s.whatsapp.net"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBroadcastRequiresLiveConnection(t *testing.T) {
	sender := &fakeSender{connected: false}
	repo := &fakeRepo{}
	d := newTestDispatcher(sender, repo)

	_, err := d.Broadcast(context.Background(), "a@example.com", "hi", []string{"1234"})
	if !errdefs.IsUnavailable(err) {
		t.Errorf("err = %v, want unavailable", err)
	}
	if len(repo.entries) != 0 {
		t.Errorf("audit entries = %d, want 0 for rejected request", len(repo.entries))
	}
}

func TestBroadcastValidatesInput(t *testing.T) {
	sender := &fakeSender{connected: true}
	repo := &fakeRepo{}
	d := newTestDispatcher(sender, repo)

	if _, err := d.Broadcast(context.Background(), "a@example.com", "", []string{"1234"}); !errdefs.IsInvalidArgument(err) {
		t.Errorf("empty message: err = %v, want invalid argument", err)
	}
	if _, err := d.Broadcast(context.Background(), "a@example.com", "hi", nil); !errdefs.IsInvalidArgument(err) {
		t.Errorf("empty recipients: err = %v, want invalid argument", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sends = %v, want none", sender.sent)
	}
	if len(repo.entries) != 0 {
		t.Errorf("audit entries = %d, want 0 for rejected requests", len(repo.entries))
	}
}

func TestBroadcastSingleRecipient(t *testing.T) {
	sender := &fakeSender{connected: true}
	repo := &fakeRepo{}
	d := newTestDispatcher(sender, repo)

	result, err := d.Broadcast(context.Background(), "a@example.com", "hi", []string{"1234"})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if result.SentTo != 1 {
		t.Errorf("SentTo = %d, want 1", result.SentTo)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "1234@s.whatsapp.net" {
		t.Errorf("sends = %v, want exactly one to 1234@s.whatsapp.net", sender.sent)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Outcome != domain.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", entry.Outcome)
	}
	if entry.Email != "a@example.com" || entry.Message != "hi" {
		t.Errorf("entry = %+v, want caller's message keyed by email", entry)
	}
}

func TestBroadcastIsolatesRecipientFailures(t *testing.T) {
	sender := &fakeSender{
		connected: true,
		failOn:    map[string]error{"B@s.whatsapp.net": errors.New("recipient rejected")},
	}
	repo := &fakeRepo{}
	d := newTestDispatcher(sender, repo)

	result, err := d.Broadcast(context.Background(), "a@example.com", "hi", []string{"A", "B", "C"})
	if err == nil {
		t.Fatal("expected caller-visible error when a recipient fails")
	}
	if !errdefs.IsInternal(err) {
		t.Errorf("err = %v, want internal", err)
	}

	// The failure on B must not abort the send to C.
	if len(sender.sent) != 2 {
		t.Errorf("sends = %v, want A and C", sender.sent)
	}
	if result.SentTo != 2 {
		t.Errorf("SentTo = %d, want 2", result.SentTo)
	}
	if len(result.Recipients) != 3 {
		t.Fatalf("recipient outcomes = %d, want 3", len(result.Recipients))
	}
	if result.Recipients[1].Error == "" {
		t.Error("recipient B should carry its send error")
	}
	if result.Recipients[0].Error != "" || result.Recipients[2].Error != "" {
		t.Error("recipients A and C should have no error")
	}

	if len(repo.entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(repo.entries))
	}
	if repo.entries[0].Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", repo.entries[0].Outcome)
	}
}

func TestBroadcastAppendFailureKeepsDeliveryError(t *testing.T) {
	sender := &fakeSender{
		connected: true,
		failOn:    map[string]error{"B@s.whatsapp.net": errors.New("recipient rejected")},
	}
	repo := &fakeRepo{appendErr: errors.New("database is locked")}
	d := newTestDispatcher(sender, repo)

	result, err := d.Broadcast(context.Background(), "a@example.com", "hi", []string{"A", "B"})
	if err == nil {
		t.Fatal("expected error when a send and the audit append both fail")
	}
	// Both failures must be visible: the audit error must not mask the
	// delivery failure.
	if !errdefs.IsInternal(err) {
		t.Errorf("err = %v, want to carry the delivery failure", err)
	}
	if !strings.Contains(err.Error(), "record broadcast") {
		t.Errorf("err = %v, want to carry the audit failure", err)
	}
	if result == nil || result.SentTo != 1 {
		t.Errorf("result = %+v, want SentTo = 1", result)
	}
}

func TestBroadcastLogsOriginalNumbers(t *testing.T) {
	sender := &fakeSender{connected: true}
	repo := &fakeRepo{}
	d := newTestDispatcher(sender, repo)

	if _, err := d.Broadcast(context.Background(), "a@example.com", "hi", []string{"1234", "5678"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	got := repo.entries[0].Numbers
	if len(got) != 2 || got[0] != "1234" || got[1] != "5678" {
		t.Errorf("logged numbers = %v, want the caller's bare numbers", got)
	}
}
