package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-family-auth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 2*time.Hour, cfg.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, time.Minute, cfg.RevocationSweepInterval)
	assert.Equal(t, "CN", cfg.PhoneRegion)
	assert.False(t, cfg.DevTrustUserHeader)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFromDotenv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	content := strings.Join([]string{
		"AUTH_JWT_SECRET=" + testSecret,
		"AUTH_ACCESS_TTL=30m",
		"AUTH_JWT_AUDIENCE=app,admin",
		"AUTH_DEV_TRUST_USER_HEADER=true",
	}, "\n")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	t.Cleanup(func() {
		for _, k := range []string{"AUTH_JWT_SECRET", "AUTH_ACCESS_TTL", "AUTH_JWT_AUDIENCE", "AUTH_DEV_TRUST_USER_HEADER"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := config.Load(file)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, []string{"app", "admin"}, cfg.JWTAudience)
	assert.True(t, cfg.DevTrustUserHeader)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing secret",
			env:     map[string]string{},
			wantErr: "parse env",
		},
		{
			name:    "short secret",
			env:     map[string]string{"AUTH_JWT_SECRET": "short"},
			wantErr: "AUTH_JWT_SECRET must be at least",
		},
		{
			name: "unknown driver",
			env: map[string]string{
				"AUTH_JWT_SECRET":      testSecret,
				"AUTH_DATABASE_DRIVER": "mysql",
			},
			wantErr: "not supported",
		},
		{
			name: "refresh shorter than access",
			env: map[string]string{
				"AUTH_JWT_SECRET":  testSecret,
				"AUTH_ACCESS_TTL":  "2h",
				"AUTH_REFRESH_TTL": "1h",
			},
			wantErr: "AUTH_REFRESH_TTL",
		},
		{
			name: "negative sweep interval",
			env: map[string]string{
				"AUTH_JWT_SECRET":                testSecret,
				"AUTH_REVOCATION_SWEEP_INTERVAL": "-1m",
			},
			wantErr: "AUTH_REVOCATION_SWEEP_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "")
			os.Unsetenv("AUTH_JWT_SECRET")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
