package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// yoto is the only provider today; the column exists so a second service
// does not force a schema change.
const providerYoto = "yoto"

// TokenRepository persists OAuth tokens so a restart does not force a new
// device flow. Implements the token store expected by the API auth layer.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// SaveToken upserts the stored token for the Yoto provider.
func (r *TokenRepository) SaveToken(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("cannot persist empty token")
	}

	query := `
		INSERT INTO oauth_tokens (provider, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, providerYoto, token.AccessToken, token.RefreshToken, token.TokenType, token.Expiry, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the stored token, or nil when none has been saved yet.
func (r *TokenRepository) LoadToken() (*oauth2.Token, error) {
	query := `
		SELECT access_token, refresh_token, token_type, expiry
		FROM oauth_tokens
		WHERE provider = ?
	`

	var (
		accessToken  string
		refreshToken string
		tokenType    string
		expiry       sql.NullTime
	)

	err := r.db.QueryRow(query, providerYoto).Scan(&accessToken, &refreshToken, &tokenType, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
	}
	if expiry.Valid {
		token.Expiry = expiry.Time
	}
	return token, nil
}

// ClearToken removes the stored token, forcing a new device flow.
func (r *TokenRepository) ClearToken() error {
	if _, err := r.db.Exec("DELETE FROM oauth_tokens WHERE provider = ?", providerYoto); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
