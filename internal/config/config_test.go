package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfwwv/wwvsync/internal/tickdet"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  kind: file\n  path: /tmp/stream.bin\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultCmdRateLimit, cfg.Control.CmdRateLimit)
	assert.Equal(t, "wwvsync_params.conf", cfg.Control.ParamFile)
	assert.Equal(t, defaultQueueDepth, cfg.Telemetry.QueueDepth)
	assert.Equal(t, []float64{0, 500, 600}, cfg.ToneTrack.NominalHz)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "file", cfg.Source.Kind)
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "control:\n  cmd_rate_limit: 25\n  param_file: custom.conf\nlogging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Control.CmdRateLimit)
	assert.Equal(t, "custom.conf", cfg.Control.ParamFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTickConfigToParamsOnlyOverridesNonZeroFields(t *testing.T) {
	tc := TickConfig{ThresholdMult: 3.5}
	p := tc.ToParams(true)

	defaults := tickdet.DefaultParams()
	assert.Equal(t, 3.5, p.ThresholdMult)
	assert.Equal(t, defaults.AdaptDown, p.AdaptDown)
	assert.True(t, p.UseWWVH)
}

func TestSyncConfigToParamsOverridesWeights(t *testing.T) {
	sc := SyncConfig{WeightMarker: 0.9}
	p := sc.ToParams()
	assert.Equal(t, 0.9, p.Weights.Marker)
}

func TestBCDConfigToParams(t *testing.T) {
	bc := BCDConfig{MinPositionMarkers: 6}
	p := bc.ToParams()
	assert.Equal(t, 6, p.MinPositionMarkers)
	assert.Equal(t, 1, p.PositionGateToleranceSeconds, "zero-valued fields should fall back to the package default")
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &Config{}
	cfg.Control.CmdRateLimit = 42
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Control.CmdRateLimit)
}
