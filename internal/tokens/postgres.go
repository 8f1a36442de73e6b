package tokens

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the token document in PostgreSQL, one row per
// platform.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			platform TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT platform, access_token, refresh_token, expires_at, updated_at FROM oauth_tokens`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]Token)
	for rows.Next() {
		var platform string
		var tok Token
		if err := rows.Scan(&platform, &tok.AccessToken, &tok.RefreshToken, &tok.ExpiresAt, &tok.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens[platform] = tok
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return tokens, nil
}

// Save replaces the stored document with tokens inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, tokens map[string]Token) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM oauth_tokens`); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	for platform, tok := range tokens {
		_, err := tx.Exec(ctx,
			`INSERT INTO oauth_tokens (platform, access_token, refresh_token, expires_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			platform,
			tok.AccessToken,
			tok.RefreshToken,
			tok.ExpiresAt,
			tok.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert token for %s: %w", platform, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
