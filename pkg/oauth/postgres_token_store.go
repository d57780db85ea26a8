package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// PostgresTokenStore keeps the single token record in the oauth_token table.
// The table admits one row only, so Save is a single upsert.
type PostgresTokenStore struct {
	db *pgxpool.Pool
}

func NewPostgresTokenStore(db *pgxpool.Pool) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

func (s *PostgresTokenStore) Load(ctx context.Context) (*Token, error) {
	var token Token
	var expiresAt *time.Time
	err := s.db.QueryRow(ctx, "SELECT access_token, refresh_token, expires_in, token_type, scope, expires_at FROM oauth_token WHERE id = 1").
		Scan(&token.AccessToken, &token.RefreshToken, &token.ExpiresIn, &token.TokenType, &token.Scope, &expiresAt)
	if err != nil && errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("unable to retrieve OAuth token: %w", err)
	}

	if expiresAt != nil {
		token.ExpiresAt = *expiresAt
	}
	return &token, nil
}

func (s *PostgresTokenStore) Save(ctx context.Context, token Token) error {
	var expiresAt *time.Time
	if !token.ExpiresAt.IsZero() {
		expiresAt = &token.ExpiresAt
	}

	_, err := s.db.Exec(ctx, `INSERT INTO oauth_token (id, access_token, refresh_token, expires_in, token_type, scope, expires_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_in = EXCLUDED.expires_in,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at`,
		token.AccessToken, token.RefreshToken, token.ExpiresIn, token.TokenType, token.Scope, expiresAt)
	if err != nil {
		err := fmt.Errorf("unable to store OAuth token: %w", err)
		log.Error(err)
		return err
	}
	log.Debug("Stored OAuth token in database")
	return nil
}
