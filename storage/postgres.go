package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnwmail/pastelite/models"
)

const pasteColumns = `id, content, created_at, expires_at, max_views, views_used, burned`

// PostgresStore implements PasteStore using PostgreSQL through a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to PostgreSQL and verifies the connection
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.Int("port", int(poolCfg.ConnConfig.Port)),
		slog.String("database", poolCfg.ConnConfig.Database))

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Insert saves a paste unless the id is already taken
func (s *PostgresStore) Insert(ctx context.Context, paste *models.Paste) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pastes (`+pasteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		paste.ID, paste.Content, paste.CreatedAt, paste.ExpiresAt,
		paste.MaxViews, paste.ViewsUsed, paste.Burned,
	)
	if err != nil {
		return fmt.Errorf("failed to insert paste: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateID
	}
	return nil
}

// ConsumeView performs the check-and-increment as one conditional UPDATE
func (s *PostgresStore) ConsumeView(ctx context.Context, id string, now time.Time) (*models.Paste, models.Verdict, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE pastes
		SET views_used = views_used + 1
		WHERE id = $1
		  AND NOT burned
		  AND (max_views IS NULL OR views_used < max_views)
		  AND (expires_at IS NULL OR $2 < expires_at)
		RETURNING `+pasteColumns,
		id, now,
	)
	paste, err := scanPgPaste(row)
	if err == nil {
		return paste, models.OK, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFound, fmt.Errorf("failed to consume view: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, models.NotFound, err
	}
	current, verdict := classify(current, now)
	return current, verdict, nil
}

// Get retrieves a paste by its ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pasteColumns+` FROM pastes WHERE id = $1`, id)
	paste, err := scanPgPaste(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get paste: %w", err)
	}
	return paste, nil
}

// Burn marks a paste as burned
func (s *PostgresStore) Burn(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pastes SET burned = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to burn paste: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a paste
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pastes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete paste: %w", err)
	}
	return nil
}

// DeleteExpired removes every paste whose expiry has passed
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pastes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the connection pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgPaste(row pgx.Row) (*models.Paste, error) {
	p := &models.Paste{}
	if err := row.Scan(&p.ID, &p.Content, &p.CreatedAt, &p.ExpiresAt, &p.MaxViews, &p.ViewsUsed, &p.Burned); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if p.ExpiresAt != nil {
		t := p.ExpiresAt.UTC()
		p.ExpiresAt = &t
	}
	return p, nil
}
