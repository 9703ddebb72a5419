package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/costing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "costing-engine", cfg.App.Name)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "./data/costing.db", cfg.Database.Path)
	assert.Equal(t, "0.25", cfg.Engine.HoldingRate.String())
	assert.Equal(t, 30, cfg.Engine.DefaultWindowDays)
	assert.False(t, cfg.Engine.WriteOffsInCOGS)
	assert.Equal(t, costing.DefaultCheckEvery, cfg.Engine.CancelCheckEvery)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COSTING_APP_ENV", "production")
	t.Setenv("COSTING_ENGINE_HOLDING_RATE", "0.18")
	t.Setenv("COSTING_ENGINE_DEFAULT_WINDOW_DAYS", "90")
	t.Setenv("COSTING_ENGINE_WRITEOFFS_IN_COGS", "true")
	t.Setenv("COSTING_CACHE_ENABLED", "true")
	t.Setenv("COSTING_CACHE_TTL", "90s")
	t.Setenv("COSTING_WARMER_SCOPES", "ACME acme/sku-1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "0.18", cfg.Engine.HoldingRate.String())
	assert.Equal(t, 90, cfg.Engine.DefaultWindowDays)
	assert.True(t, cfg.Engine.WriteOffsInCOGS)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)

	policy := cfg.Policy()
	assert.True(t, policy.WriteOffsInCOGS)
	assert.Equal(t, "0.18", policy.HoldingRate.String())

	assert.Equal(t, []costing.Scope{
		{SupplierID: "acme"},
		{SupplierID: "acme", ItemID: "sku-1"},
	}, cfg.WarmerScopes())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costing.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = "9090"

[database]
path = "/var/lib/costing/history.db"

[engine]
holding_rate = "0.3"
default_window_days = 7

[warmer]
enabled = true
interval = "1m"
scopes = ["globex"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "/var/lib/costing/history.db", cfg.Database.Path)
	assert.Equal(t, "0.3", cfg.Engine.HoldingRate.String())
	assert.Equal(t, 7, cfg.Engine.DefaultWindowDays)
	assert.True(t, cfg.Warmer.Enabled)
	assert.Equal(t, time.Minute, cfg.Warmer.Interval)
	assert.Equal(t, []costing.Scope{{SupplierID: "globex"}}, cfg.WarmerScopes())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := map[string]map[string]string{
		"negative holding rate": {"COSTING_ENGINE_HOLDING_RATE": "-0.1"},
		"bad holding rate":      {"COSTING_ENGINE_HOLDING_RATE": "a quarter"},
		"zero window":           {"COSTING_ENGINE_DEFAULT_WINDOW_DAYS": "0"},
		"zero check interval":   {"COSTING_ENGINE_CANCEL_CHECK_EVERY": "0"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestWarmerScopes_DefaultsToAll(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, []costing.Scope{{}}, cfg.WarmerScopes())
}
