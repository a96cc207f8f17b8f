package admin_test

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"github.com/periscope/aggregator-api/internal/testutils"
	"github.com/periscope/aggregator-api/internal/webservice/admin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		useHash  bool
		username string
		password string

		want bool
	}{
		"Matching plain password": {username: testUser, password: testPassword, want: true},
		"Matching password hash":  {useHash: true, username: testUser, password: testPassword, want: true},

		"Wrong password":        {username: testUser, password: "nope"},
		"Wrong password hash":   {useHash: true, username: testUser, password: "nope"},
		"Wrong username":        {username: "someone", password: testPassword},
		"Username prefix":       {username: testUser[:3], password: testPassword},
		"Empty credentials":     {},
		"Password with padding": {username: testUser, password: testPassword + " "},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := admin.Config{Username: testUser, Password: testPassword}
			if tc.useHash {
				cfg = admin.Config{Username: testUser, PasswordHash: testHash(t)}
			}
			creds, err := admin.NewCredentials(cfg)
			require.NoError(t, err, "Setup: NewCredentials should not fail")

			assert.Equal(t, tc.want, creds.Verify(tc.username, tc.password), "Unexpected verification result")
		})
	}
}

// Tests in this function swap the default logger and so are not parallel.
func TestNewCredentialsWarnsOnDefaults(t *testing.T) {
	tests := map[string]struct {
		cfg admin.Config

		wantWarning bool
	}{
		"Default credentials": {cfg: admin.Config{Username: "admin", Password: "admin123"}, wantWarning: true},
		"Default as hash": {
			cfg:         admin.Config{Username: "admin", PasswordHash: mustHash(t, "admin123")},
			wantWarning: true,
		},

		"Custom password":      {cfg: admin.Config{Username: "admin", Password: "s3cret"}},
		"Custom username":      {cfg: admin.Config{Username: "root", Password: "admin123"}},
		"Custom password hash": {cfg: admin.Config{Username: "admin", PasswordHash: mustHash(t, "s3cret")}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec, logger := testutils.NewLogRecorder(slog.LevelWarn)
			prev := slog.Default()
			slog.SetDefault(logger)
			t.Cleanup(func() { slog.SetDefault(prev) })

			_, err := admin.NewCredentials(tc.cfg)
			require.NoError(t, err, "NewCredentials should not fail")

			if tc.wantWarning {
				assert.Equal(t, 1, rec.Count(slog.LevelWarn), "Default credentials should be reported")
				return
			}
			if !assert.Zero(t, rec.Count(slog.LevelWarn), "Custom credentials should not be reported") {
				rec.Dump(t)
			}
		})
	}
}

func TestSessionSecret(t *testing.T) {
	t.Parallel()

	hexKey := strings.Repeat("0f", 32)
	decoded, err := hex.DecodeString(hexKey)
	require.NoError(t, err, "Setup: could not decode key")

	tests := map[string]struct {
		key string

		want       []byte
		wantRandom bool
	}{
		"Hex key is decoded":        {key: hexKey, want: decoded},
		"Short hex key is kept raw": {key: "0f0f", want: []byte("0f0f")},
		"Raw key is kept":           {key: "a long passphrase", want: []byte("a long passphrase")},
		"Empty key is random":       {wantRandom: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := admin.SessionSecret(tc.key)
			require.NoError(t, err, "SessionSecret should not fail")

			if !tc.wantRandom {
				assert.Equal(t, tc.want, got, "Unexpected secret")
				return
			}

			require.Len(t, got, 32, "Random secret should be 32 bytes")
			other, err := admin.SessionSecret(tc.key)
			require.NoError(t, err, "SessionSecret should not fail")
			assert.False(t, bytes.Equal(got, other), "Random secrets should differ between calls")
		})
	}
}

func TestConfigLogValueHidesSecrets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	l.Info("config", "admin", admin.Config{Username: "admin", Password: "hunter2", SecretKey: "topsecret"})

	out := buf.String()
	assert.Contains(t, out, "admin.username=admin", "Username should be logged")
	assert.Contains(t, out, "admin.password_set=true", "Password presence should be logged")
	assert.NotContains(t, out, "hunter2", "Password should never be logged")
	assert.NotContains(t, out, "topsecret", "Secret key should never be logged")
}

func mustHash(t *testing.T, password string) string {
	t.Helper()

	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err, "Setup: could not hash password")
	return string(b)
}
