package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/johnwmail/pastelite/models"
)

// SQLiteStore implements PasteStore on an embedded SQLite database.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// shared across the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrateSQLite(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	logger.Info("Opened SQLite database", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Insert saves a paste unless the id is already taken
func (s *SQLiteStore) Insert(ctx context.Context, paste *models.Paste) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pastes (`+pasteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		paste.ID, paste.Content, paste.CreatedAt.UnixMilli(), nullMillis(paste.ExpiresAt),
		nullInt(paste.MaxViews), paste.ViewsUsed, paste.Burned,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting paste: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking inserted rows: %w", err)
	}
	if n == 0 {
		return ErrDuplicateID
	}
	return nil
}

// ConsumeView performs the check-and-increment as one conditional UPDATE
func (s *SQLiteStore) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pastes
		SET views_used = views_used + 1
		WHERE id = ?
		  AND burned = 0
		  AND (max_views IS NULL OR views_used < max_views)
		  AND (expires_at IS NULL OR ? < expires_at)
		RETURNING `+pasteColumns,
		id, now.UnixMilli(),
	)
	paste, err := scanSQLitePaste(row)
	if err == nil {
		return paste, models.OK, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound, fmt.Errorf("sqlite: consuming view: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, models.NotFound, err
	}
	current, verdict := classify(current, now)
	return current, verdict, nil
}

// Get retrieves a paste by its ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pasteColumns+` FROM pastes WHERE id = ?`, id)
	paste, err := scanSQLitePaste(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting paste: %w", err)
	}
	return paste, nil
}

// Burn marks a paste as burned
func (s *SQLiteStore) Burn(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pastes SET burned = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: burning paste: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking burned rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a paste
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pastes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting paste: %w", err)
	}
	return nil
}

// DeleteExpired removes every paste whose expiry has passed
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired pastes: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database handle
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLitePaste(row *sql.Row) (*models.Paste, error) {
	var (
		p         models.Paste
		createdAt int64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Content, &createdAt, &expiresAt, &maxViews, &p.ViewsUsed, &p.Burned); err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64).UTC()
		p.ExpiresAt = &t
	}
	if maxViews.Valid {
		v := int(maxViews.Int64)
		p.MaxViews = &v
	}
	return &p, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
