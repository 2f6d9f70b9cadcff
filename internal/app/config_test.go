package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "strict", cfg.CostingPolicy)
	require.Equal(t, []int{30, 90, 180}, cfg.AgingBoundaryDays)
	require.InDelta(t, 0.80, cfg.ABCClassACutoff, 0.0001)
	require.InDelta(t, 0.95, cfg.ABCClassBCutoff, 0.0001)
	require.True(t, cfg.UseMemoryStore())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/ledger")
	t.Setenv("COSTING_POLICY", "degrade")
	t.Setenv("AGING_BOUNDARY_DAYS", "7,30")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.UseMemoryStore())
	require.Equal(t, "degrade", cfg.CostingPolicy)
	require.Equal(t, []int{7, 30}, cfg.AgingBoundaryDays)
	require.True(t, cfg.IsProduction())
}
