// Package auth stores and verifies dashboard principals for HTTP basic auth.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
)

// ErrUnknownUser is returned when no principal matches the username.
var ErrUnknownUser = errors.New("unknown user")

// Credentials resolves principals from the users table of the audit database.
type Credentials struct {
	db              *sql.DB
	defaultUser     string
	defaultPassword string
	logger          arbor.ILogger
}

// NewCredentials wires the store to the shared database handle.
func NewCredentials(db *sql.DB, defaultUser, defaultPassword string, logger arbor.ILogger) *Credentials {
	return &Credentials{
		db:              db,
		defaultUser:     defaultUser,
		defaultPassword: defaultPassword,
		logger:          logger,
	}
}

// HashPassword returns the hex SHA-256 digest stored for a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the password matches the stored hash in constant time.
func Verify(storedHash, password string) bool {
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}

// PasswordHash returns the stored hash for the username.
func (c *Credentials) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := c.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnknownUser
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user %s: %w", username, err)
	}
	return hash, nil
}

// SeedDefault creates the default principal when the users table is empty.
// Existing principals are never overwritten.
func (c *Credentials) SeedDefault(ctx context.Context) error {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		c.defaultUser, HashPassword(c.defaultPassword))
	if err != nil {
		return fmt.Errorf("failed to seed default user: %w", err)
	}
	c.logger.Info().Str("username", c.defaultUser).Msg("Seeded default dashboard user")
	return nil
}
