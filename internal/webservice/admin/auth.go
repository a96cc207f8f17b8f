package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/periscope/aggregator-api/internal/constants"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the admin surface configuration.
type Config struct {
	Username string
	// Password is hashed at startup. PasswordHash, a bcrypt hash, takes precedence when set.
	Password     string
	PasswordHash string

	// SecretKey signs session cookies. It is decoded as hex when possible and used raw otherwise.
	// An empty key is replaced by a random one, which invalidates sessions on restart.
	SecretKey string

	SessionTTL   time.Duration
	SecureCookie bool

	// LoginRate is the number of login attempts allowed per second and client IP, after LoginBurst.
	LoginRate  float64
	LoginBurst int
}

// LogValue implements slog.LogValuer so that secrets are never logged.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.Bool("password_set", c.Password != ""),
		slog.Bool("password_hash_set", c.PasswordHash != ""),
		slog.Bool("secret_key_set", c.SecretKey != ""),
		slog.Duration("session_ttl", c.SessionTTL),
		slog.Float64("login_rate", c.LoginRate),
		slog.Int("login_burst", c.LoginBurst),
	)
}

// Credentials verifies admin logins against a single configured account.
type Credentials struct {
	username []byte
	hash     []byte
}

// NewCredentials builds the credentials from the configuration.
func NewCredentials(cfg Config) (*Credentials, error) {
	if cfg.Username == "" {
		return nil, errors.New("admin username must not be empty")
	}

	var hash []byte
	switch {
	case cfg.PasswordHash != "":
		hash = []byte(cfg.PasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("invalid admin password hash: %v", err)
		}
	case cfg.Password != "":
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost); err != nil {
			return nil, fmt.Errorf("could not hash admin password: %v", err)
		}
	default:
		return nil, errors.New("admin password must not be empty")
	}

	if cfg.Username == constants.DefaultAdminUsername && bcrypt.CompareHashAndPassword(hash, []byte(constants.DefaultAdminPassword)) == nil {
		slog.Warn("Admin surface uses the default credentials. Set ADMIN_USERNAME and ADMIN_PASSWORD_HASH.")
	}

	return &Credentials{username: []byte(cfg.Username), hash: hash}, nil
}

// Verify reports whether username and password match the configured account.
// Both checks always run so that an unknown username and a wrong password take the same time.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), c.username) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return userOK && passOK
}

// SessionSecret returns the key signing session cookies.
func SessionSecret(key string) ([]byte, error) {
	if key == "" {
		slog.Warn("SECRET_KEY is not set. Using a random key: admin sessions will not survive a restart.")
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("could not generate session secret: %v", err)
		}
		return secret, nil
	}

	if b, err := hex.DecodeString(key); err == nil && len(b) >= 16 {
		return b, nil
	}
	return []byte(key), nil
}
