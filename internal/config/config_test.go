package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("LEDGER_TEST_DSN", "postgres://ledger@localhost/ledger")
	path := writeConfig(t, `
app:
  env: dev
postgres:
  dsn: ${LEDGER_TEST_DSN}
jwt:
  jwt_secret: secret
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "postgres://ledger@localhost/ledger", cfg.Postgres.DSN)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "ledger.transactions.dlq", cfg.Kafka.DLQTopic)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, "fixed", cfg.RateLimit.Algorithm)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "postgres without dsn",
			body:    "jwt:\n  jwt_secret: s\n",
			wantErr: "postgres.dsn",
		},
		{
			name:    "unknown driver",
			body:    "storage:\n  driver: sqlite\njwt:\n  jwt_secret: s\n",
			wantErr: "not supported",
		},
		{
			name:    "kafka without brokers",
			body:    "storage:\n  driver: memory\nkafka:\n  enabled: true\njwt:\n  jwt_secret: s\n",
			wantErr: "kafka.bootstrap_servers",
		},
		{
			name:    "no authentication",
			body:    "storage:\n  driver: memory\n",
			wantErr: "oidc.url or jwt.jwt_secret",
		},
		{
			name:    "bad algorithm",
			body:    "storage:\n  driver: memory\njwt:\n  jwt_secret: s\nrate_limit:\n  algorithm: leaky\n",
			wantErr: "rate_limit.algorithm",
		},
		{
			name: "memory with secret",
			body: "storage:\n  driver: memory\njwt:\n  jwt_secret: s\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
