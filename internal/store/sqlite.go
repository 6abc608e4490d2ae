package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"golang.org/x/sync/semaphore"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements MessageStore and UserDirectory using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	maxLen int
	now    func() time.Time

	// writeSem serializes id and created_at assignment so both follow write order.
	writeSem      *semaphore.Weighted
	lastCreatedAt int64
}

// NewSQLite creates a new SQLite-backed store.
func NewSQLite(dbPath string, maxMessageLength int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys are per connection so they go in the DSN.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, maxLen: maxMessageLength, now: time.Now, writeSem: semaphore.NewWeighted(1)}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if err := db.QueryRow(`SELECT COALESCE(MAX(created_at), 0) FROM private_messages`).Scan(&store.lastCreatedAt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load last message time: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS private_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL REFERENCES users(id),
		receiver_id INTEGER NOT NULL REFERENCES users(id),
		message_text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		CHECK (sender_id <> receiver_id)
	);
	CREATE INDEX IF NOT EXISTS idx_private_messages_pair
		ON private_messages(sender_id, receiver_id, created_at, id);
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Append validates and persists a message in a single INSERT.
func (s *SQLiteStore) Append(ctx context.Context, sender, receiver domain.UserID, text string) (*domain.Message, error) {
	text, err := domain.ValidateMessage(sender, receiver, text, s.maxLen)
	if err != nil {
		return nil, err
	}

	// A caller whose deadline passes while queued fails without writing.
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: append message: %w", domain.ErrStorage, err)
	}
	defer s.writeSem.Release(1)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: append message: %w", domain.ErrStorage, err)
	}

	createdAt := s.now().UnixNano()
	if createdAt < s.lastCreatedAt {
		createdAt = s.lastCreatedAt
	}

	var id int64
	err = withBusyRetry(ctx, "append message", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO private_messages (sender_id, receiver_id, message_text, created_at)
			VALUES (?, ?, ?, ?)`,
			int64(sender), int64(receiver), text, createdAt,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, classifyWriteError("append message", err)
	}
	s.lastCreatedAt = createdAt

	return &domain.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		CreatedAt:  time.Unix(0, createdAt).UTC(),
	}, nil
}

// ReadConversation returns the ordered messages between a and b.
func (s *SQLiteStore) ReadConversation(ctx context.Context, a, b domain.UserID, afterID int64) ([]domain.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, message_text, created_at
		FROM private_messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND id > ?
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, int64(a), int64(b), int64(b), int64(a), afterID)
	if err != nil {
		return nil, fmt.Errorf("%w: query conversation: %w", domain.ErrStorage, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var sender, receiver, createdAt int64
		if err := rows.Scan(&m.ID, &sender, &receiver, &m.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan message row: %w", domain.ErrStorage, err)
		}
		m.SenderID = domain.UserID(sender)
		m.ReceiverID = domain.UserID(receiver)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate conversation: %w", domain.ErrStorage, err)
	}

	return messages, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error) {
	now := s.now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))

	var id int64
	err := withBusyRetry(ctx, "create user", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO users (username, email, password_hash, created_at)
			VALUES (?, ?, ?, ?)`,
			username, email, passwordHash, now.Unix(),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, classifyWriteError("create user", err)
	}

	return &domain.User{
		ID:           domain.UserID(id),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Unix(now.Unix(), 0).UTC(),
	}, nil
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id = ?`, int64(id))
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// ListOthers returns every user except the given one, ordered by username.
func (s *SQLiteStore) ListOthers(ctx context.Context, excluding domain.UserID) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id != ? ORDER BY username`, int64(excluding))
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %w", domain.ErrStorage, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user rows", "error", closeErr)
		}
	}()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %w", domain.ErrStorage, err)
	}
	return users, nil
}

// Exists reports whether a user with the given id is registered.
func (s *SQLiteStore) Exists(ctx context.Context, id domain.UserID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, int64(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup user: %w", domain.ErrStorage, err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var id, createdAt int64
	err := row.Scan(&id, &user.Username, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan user row: %w", domain.ErrStorage, err)
	}
	user.ID = domain.UserID(id)
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &user, nil
}
