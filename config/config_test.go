package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsFillMissingKeys(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: a-very-long-test-secret
database:
  driver: postgres
  postgres_dsn: postgres://leave@localhost/leave
server:
  read_timeout: 30s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "tempo.fit", cfg.Organization.Domain)
	assert.Equal(t, "log", cfg.Notifications.Driver)

	loc, err := cfg.Organization.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Cairo", loc.String())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	// GIVEN: A file with a secret and a sqlite path
	// WHEN: LEAVE_* variables are set
	// THEN: They replace the file values

	path := writeConfig(t, `
auth:
  jwt_secret: file-secret-file-secret
database:
  driver: sqlite
  sqlite_path: file.db
`)
	t.Setenv("LEAVE_JWT_SECRET", "env-secret-env-secret")
	t.Setenv("LEAVE_DATABASE_DSN", "/var/lib/leave/env.db")
	t.Setenv("LEAVE_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret-env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "/var/lib/leave/env.db", cfg.Database.SQLitePath)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", `database: {driver: sqlite}`},
		{"short secret", `auth: {jwt_secret: short}`},
		{"unknown driver", "auth: {jwt_secret: a-very-long-test-secret}\ndatabase: {driver: mysql}"},
		{"postgres without dsn", "auth: {jwt_secret: a-very-long-test-secret}\ndatabase: {driver: postgres}"},
		{"gmail without credentials", "auth: {jwt_secret: a-very-long-test-secret}\nnotifications: {driver: gmail}"},
		{"carry-over without leave types", "auth: {jwt_secret: a-very-long-test-secret}\ncarry_over: {enabled: true}"},
		{"unknown timezone", "auth: {jwt_secret: a-very-long-test-secret}\norganization: {domain: tempo.fit, timezone: Mars/Olympus}"},
		{"bad log level", "auth: {jwt_secret: a-very-long-test-secret}\nlog: {level: loud}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestDefault_IsValidOnceSecretIsSet(t *testing.T) {
	cfg := config.Default()
	assert.Error(t, config.Validate(&cfg))

	cfg.Auth.JWTSecret = "0123456789abcdef"
	assert.NoError(t, config.Validate(&cfg))
}
