package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists accounts to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("account store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL,
			tier            TEXT NOT NULL,
			daily_limit     INTEGER NOT NULL,
			daily_remaining INTEGER NOT NULL,
			last_reset_date TEXT NOT NULL,
			total_analyses  INTEGER NOT NULL DEFAULT 0,
			active          INTEGER NOT NULL DEFAULT 1,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email))`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, tier, daily_limit, daily_remaining, last_reset_date, total_analyses, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Email, string(u.Tier), u.DailyLimit, u.DailyRemaining,
		u.LastResetDate, u.TotalAnalyses, boolToInt(u.Active),
		u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, email, tier, daily_limit, daily_remaining, last_reset_date, total_analyses, active, created_at, updated_at
		FROM users WHERE id = ?`, id.String()))
}

func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, email, tier, daily_limit, daily_remaining, last_reset_date, total_analyses, active, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER(?)`, email))
}

func (s *SQLiteStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = ?, tier = ?, daily_limit = ?, daily_remaining = ?,
			last_reset_date = ?, total_analyses = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		u.Email, string(u.Tier), u.DailyLimit, u.DailyRemaining,
		u.LastResetDate, u.TotalAnalyses, boolToInt(u.Active),
		time.Now().Unix(), u.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u         User
		id        string
		tier      string
		active    int
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&id, &u.Email, &tier, &u.DailyLimit, &u.DailyRemaining,
		&u.LastResetDate, &u.TotalAnalyses, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.Tier = Tier(tier)
	u.Active = active != 0
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
