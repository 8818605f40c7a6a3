// Package state persists per-user client state: unsent drafts and the last
// selected conversation. Messages and credentials are never stored here.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/parley/internal/logging"
)

// ErrStoreClosed is returned by operations on a nil or closed Store.
var ErrStoreClosed = errors.New("state store unavailable")

// Store is a SQLite-backed state store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logging.Component("state"),
		now:    time.Now,
	}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.logger.Debug().Str("path", path).Msg("state store opened")
	return store, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			principal_id TEXT NOT NULL,
			counterparty_id TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (principal_id, counterparty_id)
		)`,
		`CREATE TABLE IF NOT EXISTS selection (
			principal_id TEXT PRIMARY KEY,
			counterparty_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize state schema: %w", err)
		}
	}
	return nil
}

// SaveDraft stores body as the draft for a conversation. An empty or
// whitespace-only body deletes the draft.
func (s *Store) SaveDraft(ctx context.Context, principalID, counterpartyID, body string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if err := requireKeys(principalID, counterpartyID); err != nil {
		return err
	}
	if strings.TrimSpace(body) == "" {
		return s.DeleteDraft(ctx, principalID, counterpartyID)
	}

	err := s.exec(ctx, `
		INSERT INTO drafts (principal_id, counterparty_id, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(principal_id, counterparty_id)
		DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, principalID, counterpartyID, body, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Draft returns the stored draft, or "" when there is none.
func (s *Store) Draft(ctx context.Context, principalID, counterpartyID string) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrStoreClosed
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM drafts WHERE principal_id = ? AND counterparty_id = ?`,
		principalID, counterpartyID,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read draft: %w", err)
	}
	return body, nil
}

// DeleteDraft removes a draft. Missing drafts are not an error.
func (s *Store) DeleteDraft(ctx context.Context, principalID, counterpartyID string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	err := s.exec(ctx,
		`DELETE FROM drafts WHERE principal_id = ? AND counterparty_id = ?`,
		principalID, counterpartyID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// SaveSelection records the conversation a principal last had open.
func (s *Store) SaveSelection(ctx context.Context, principalID, counterpartyID string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if err := requireKeys(principalID, counterpartyID); err != nil {
		return err
	}
	err := s.exec(ctx, `
		INSERT INTO selection (principal_id, counterparty_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(principal_id)
		DO UPDATE SET counterparty_id = excluded.counterparty_id, updated_at = excluded.updated_at
	`, principalID, counterpartyID, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// LastSelection returns the last selected counterparty, or "".
func (s *Store) LastSelection(ctx context.Context, principalID string) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrStoreClosed
	}
	var counterpartyID string
	err := s.db.QueryRowContext(ctx,
		`SELECT counterparty_id FROM selection WHERE principal_id = ?`,
		principalID,
	).Scan(&counterpartyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read selection: %w", err)
	}
	return counterpartyID, nil
}

// Forget removes every draft and the selection of a principal.
func (s *Store) Forget(ctx context.Context, principalID string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if strings.TrimSpace(principalID) == "" {
		return errors.New("principal is required")
	}
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE principal_id = ?`, principalID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM selection WHERE principal_id = ?`, principalID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to forget local state: %w", err)
	}
	s.logger.Debug().Str("principal_id", principalID).Msg("local state forgotten")
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func requireKeys(principalID, counterpartyID string) error {
	if strings.TrimSpace(principalID) == "" || strings.TrimSpace(counterpartyID) == "" {
		return errors.New("principal and counterparty are required")
	}
	return nil
}
