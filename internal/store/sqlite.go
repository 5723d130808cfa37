package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/wabcast/internal/domain"
	"github.com/ashureev/wabcast/internal/shared"
	"github.com/containerd/errdefs"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS accounts (
		email TEXT PRIMARY KEY,
		phone TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		session_start INTEGER NOT NULL,
		session_expires INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcast_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		message TEXT NOT NULL,
		numbers_json TEXT NOT NULL,
		outcome TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_broadcast_logs_email ON broadcast_logs(email, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetAccount retrieves an account by email.
func (s *SQLiteStore) GetAccount(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT email, phone, password_hash, active,
		       session_start, session_expires, created_at, updated_at
		FROM accounts WHERE email = ?`

	row := s.db.QueryRowContext(ctx, query, email)

	var account domain.Account
	var active int
	var sessionStart, sessionExpires, createdAt, updatedAt int64

	err := row.Scan(
		&account.Email, &account.Phone, &account.PasswordHash, &active,
		&sessionStart, &sessionExpires, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}

	account.Active = active != 0
	account.SessionStart = time.Unix(sessionStart, 0)
	account.SessionExpires = time.Unix(sessionExpires, 0)
	account.CreatedAt = time.Unix(createdAt, 0)
	account.UpdatedAt = time.Unix(updatedAt, 0)

	return &account, nil
}

// CreateAccount inserts a new account record.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
	INSERT INTO accounts (email, phone, password_hash, active, session_start, session_expires, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	active := 0
	if account.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		account.Email, account.Phone, account.PasswordHash, active,
		account.SessionStart.Unix(), account.SessionExpires.Unix(),
		account.CreatedAt.Unix(), account.UpdatedAt.Unix(),
	)
	if err != nil {
		if shared.IsSQLiteConstraintError(err) {
			return fmt.Errorf("account %s: %w", account.Email, errdefs.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateAccountActive flips the activation flag for an account.
func (s *SQLiteStore) UpdateAccountActive(ctx context.Context, email string, active bool) error {
	query := `UPDATE accounts SET active = ?, updated_at = ? WHERE email = ?`

	flag := 0
	if active {
		flag = 1
	}

	result, err := s.db.ExecContext(ctx, query, flag, time.Now().Unix(), email)
	if err != nil {
		return fmt.Errorf("update account active: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("account %s: %w", email, errdefs.ErrNotFound)
	}

	return nil
}

// AppendLogEntry appends one broadcast audit record.
// Retries with exponential backoff on SQLITE_BUSY so a contended write
// does not drop an audit record.
func (s *SQLiteStore) AppendLogEntry(ctx context.Context, entry *domain.LogEntry) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.appendLogEntryOnce(ctx, entry)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("AppendLogEntry failed with SQLITE_BUSY, retrying",
				"email", entry.Email,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("append log entry for %s: %w", entry.Email, err)
	}

	return nil
}

func (s *SQLiteStore) appendLogEntryOnce(ctx context.Context, entry *domain.LogEntry) error {
	numbers, err := json.Marshal(entry.Numbers)
	if err != nil {
		return fmt.Errorf("marshal recipient list: %w", err)
	}

	query := `
	INSERT INTO broadcast_logs (email, message, numbers_json, outcome, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		entry.Email, entry.Message, string(numbers), string(entry.Outcome),
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListLogEntries returns an account's audit records in insertion order.
func (s *SQLiteStore) ListLogEntries(ctx context.Context, email string) ([]*domain.LogEntry, error) {
	query := `
		SELECT email, message, numbers_json, outcome, created_at
		FROM broadcast_logs WHERE email = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close log entry rows", "error", closeErr)
		}
	}()

	entries := []*domain.LogEntry{}
	for rows.Next() {
		var entry domain.LogEntry
		var numbersJSON string
		var outcome string
		var createdAt int64

		if err := rows.Scan(&entry.Email, &entry.Message, &numbersJSON, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan log entry row: %w", err)
		}

		if err := json.Unmarshal([]byte(numbersJSON), &entry.Numbers); err != nil {
			return nil, fmt.Errorf("unmarshal recipient list: %w", err)
		}
		entry.Outcome = domain.Outcome(outcome)
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}

	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
