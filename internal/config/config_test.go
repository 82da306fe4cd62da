package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.False(t, cfg.Production())
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.RosterCacheTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, "teacher", cfg.TeacherRole)
	assert.False(t, cfg.SeedDemo)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ROSTER_CACHE_TTL", "0s")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("SCHOOL_SEED_DEMO", "true")
	t.Setenv("ACCESS_TTL", "not-a-duration")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Zero(t, cfg.RosterCacheTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, 8*time.Hour, cfg.AccessTTL, "invalid duration falls back")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SCHOOL_API_URL=http://school.internal:9000\nHTTP_PORT=9999\n"), 0o600))
	t.Setenv("DOTENV_PATH", path)
	// real environment wins over the file
	t.Setenv("HTTP_PORT", "7000")
	t.Cleanup(func() { os.Unsetenv("SCHOOL_API_URL") })

	cfg := Load()
	assert.Equal(t, "http://school.internal:9000", cfg.SchoolAPIURL)
	assert.Equal(t, "7000", cfg.HTTPPort)
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want bool
	}{
		{name: "one", val: "1", want: true},
		{name: "true", val: "true", want: true},
		{name: "zero", val: "0", want: false},
		{name: "garbage keeps fallback", val: "maybe", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ROLLCALL_TEST_BOOL", tt.val)
			assert.Equal(t, tt.want, boolEnv("ROLLCALL_TEST_BOOL", true))
		})
	}

	t.Setenv("ROLLCALL_TEST_INT", "abc")
	assert.Equal(t, 3, intEnv("ROLLCALL_TEST_INT", 3))
}
