package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"skillup/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ":9871", c.Addr())
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 2, c.Oracle.MaxRetries)
	assert.Equal(t, 60*time.Second, c.OracleTimeout())
	assert.Equal(t, game.DefaultRules(), c.Rules())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
database:
  host: db.internal
  name: skills
oracle:
  base_url: http://oracle:9000
  max_retries: 4
game:
  hard_weight: 8
  leaderboard_size: 25
`), 0o600))

	t.Setenv("DB_HOST", "override.internal")
	t.Setenv("LLM_TIMEOUT", "15")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	c := Load(path)
	assert.Equal(t, ":8080", c.Addr())
	assert.Equal(t, "override.internal", c.Database.Host)
	assert.Equal(t, "skills", c.Database.Name)
	assert.Equal(t, 3306, c.Database.Port)
	assert.Equal(t, "http://oracle:9000", c.Oracle.BaseURL)
	assert.Equal(t, 4, c.Oracle.MaxRetries)
	assert.Equal(t, 15*time.Second, c.OracleTimeout())
	assert.Equal(t, "s3cret", c.Auth.JWTSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.Server.CORSOrigins)

	r := c.Rules()
	assert.Equal(t, 80, r.Score(game.Hard))
	assert.Equal(t, 30, r.Score(game.Medium))
	assert.Equal(t, 25, r.LeaderboardSize())
}

func TestEnvOverrideIntIgnoresGarbage(t *testing.T) {
	n := 7
	t.Setenv("SKILLUP_TEST_INT", "seven")
	envOverrideInt(&n, "SKILLUP_TEST_INT")
	assert.Equal(t, 7, n)
}

func TestValidate(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, c.Validate())

	t.Setenv("LOG_LEVEL", "WARN")
	assert.Equal(t, "warn", Load(filepath.Join(t.TempDir(), "missing.yaml")).Log.Level)

	bad := *c
	bad.Oracle.BaseURL = "not a url"
	assert.Error(t, bad.Validate())

	bad = *c
	bad.Database.Port = 0
	assert.Error(t, bad.Validate())

	bad = *c
	bad.Log.Level = "loud"
	assert.Error(t, bad.Validate())

	bad = *c
	bad.Game.HardWeight = -1
	assert.Error(t, bad.Validate())
}
