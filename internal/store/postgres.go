package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio/api/internal/content"
)

// ContentRowID is the id of the single site_content row.
const ContentRowID = 1

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// LoadContent returns the stored document, or nil when no row exists yet.
func (s *PostgresStore) LoadContent(ctx context.Context) (content.Tree, error) {
	row, err := s.loadRow(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	return row.Content, nil
}

// LoadContentRow is LoadContent with the row's update time.
func (s *PostgresStore) LoadContentRow(ctx context.Context) (*ContentRow, error) {
	return s.loadRow(ctx)
}

func (s *PostgresStore) loadRow(ctx context.Context) (*ContentRow, error) {
	var raw []byte
	row := ContentRow{ID: ContentRowID}
	err := s.db.QueryRowContext(ctx, `SELECT content, updated_at FROM site_content WHERE id=$1`, ContentRowID).Scan(&raw, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load site content: %w", err)
	}
	doc, err := content.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse site content: %w", err)
	}
	row.Content = doc
	return &row, nil
}

// SaveContent upserts the single content row. The table trigger notifies
// listeners once the statement commits.
func (s *PostgresStore) SaveContent(ctx context.Context, doc content.Tree) error {
	if doc == nil {
		return content.ErrNotObject
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode site content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO site_content (id, content, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, updated_at=NOW()
	`, ContentRowID, string(raw))
	if err != nil {
		return fmt.Errorf("save site content: %w", err)
	}
	return nil
}

// ContentUpdatedAt reports when the row was last written. ok is false when
// there is no row.
func (s *PostgresStore) ContentUpdatedAt(ctx context.Context) (updatedAt time.Time, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT updated_at FROM site_content WHERE id=$1`, ContentRowID).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read content timestamp: %w", err)
	}
	return updatedAt, true, nil
}

// CheckWriteAccess performs an upsert inside a transaction that is always
// rolled back, so it proves write permission without changing the row or
// notifying listeners.
func (s *PostgresStore) CheckWriteAccess(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write check: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO site_content (id, content, updated_at)
		VALUES ($1, '{}'::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE SET updated_at=site_content.updated_at
	`, ContentRowID); err != nil {
		return fmt.Errorf("write check: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// PurgeRevokedAccessTokens drops revocations whose token has expired anyway.
func (s *PostgresStore) PurgeRevokedAccessTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM revoked_access_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return purged, nil
}
