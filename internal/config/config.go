// Package config loads and validates wwvsyncd's YAML configuration:
// unmarshal into the zero-valued struct, then fill in any field left at
// its zero value.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hfwwv/wwvsync/internal/bcd"
	"github.com/hfwwv/wwvsync/internal/epochsync"
	"github.com/hfwwv/wwvsync/internal/markerdet"
	"github.com/hfwwv/wwvsync/internal/tickdet"
)

// Config is the top-level configuration for wwvsyncd.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Tick      TickConfig      `yaml:"tick_detector"`
	Marker    MarkerConfig    `yaml:"marker_detector"`
	Sync      SyncConfig      `yaml:"sync_detector"`
	BCD       BCDConfig       `yaml:"bcd_correlator"`
	ToneTrack ToneTrackConfig `yaml:"tone_trackers"`
	Control   ControlConfig   `yaml:"control"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig describes where C1 reads its framed I/Q stream from.
type SourceConfig struct {
	Kind     string `yaml:"kind"` // "file" or "net"
	Path     string `yaml:"path"`
	Address  string `yaml:"address"`
	UseWWVH  bool   `yaml:"use_wwvh"`
}

// TickConfig mirrors tickdet.Params for YAML round-tripping.
type TickConfig struct {
	ThresholdMult float64 `yaml:"threshold_mult"`
	AdaptDown     float64 `yaml:"adapt_down"`
	AdaptUp       float64 `yaml:"adapt_up"`
	MinDurationMs float64 `yaml:"min_duration_ms"`
	MatchedFilter bool    `yaml:"matched_filter"`
	GateEnabled   bool    `yaml:"gate_enabled"`
}

func (c TickConfig) ToParams(useWWVH bool) tickdet.Params {
	p := tickdet.DefaultParams()
	p.UseWWVH = useWWVH
	if c.ThresholdMult != 0 {
		p.ThresholdMult = c.ThresholdMult
	}
	if c.AdaptDown != 0 {
		p.AdaptDown = c.AdaptDown
	}
	if c.AdaptUp != 0 {
		p.AdaptUp = c.AdaptUp
	}
	if c.MinDurationMs != 0 {
		p.MinDurationMs = c.MinDurationMs
	}
	p.MatchedFilter = c.MatchedFilter
	p.GateEnabled = c.GateEnabled
	return p
}

// MarkerConfig mirrors markerdet.Params.
type MarkerConfig struct {
	ThresholdMult float64 `yaml:"threshold_mult"`
	NoiseAdapt    float64 `yaml:"noise_adapt"`
	MinDurationMs float64 `yaml:"min_duration_ms"`
}

func (c MarkerConfig) ToParams(useWWVH bool) markerdet.Params {
	p := markerdet.DefaultParams()
	p.UseWWVH = useWWVH
	if c.ThresholdMult != 0 {
		p.ThresholdMult = c.ThresholdMult
	}
	if c.NoiseAdapt != 0 {
		p.NoiseAdapt = c.NoiseAdapt
	}
	if c.MinDurationMs != 0 {
		p.MinDurationMs = c.MinDurationMs
	}
	return p
}

// SyncConfig mirrors epochsync.Params.
type SyncConfig struct {
	LockedThreshold      float64 `yaml:"locked_threshold"`
	MinRetain            float64 `yaml:"min_retain"`
	DecayNormal          float64 `yaml:"decay_normal"`
	DecayRecovering      float64 `yaml:"decay_recovering"`
	WeightTick           float64 `yaml:"weight_tick"`
	WeightMarker         float64 `yaml:"weight_marker"`
	WeightPMarker        float64 `yaml:"weight_pmarker"`
	WeightTickHole       float64 `yaml:"weight_tick_hole"`
	WeightCombined       float64 `yaml:"weight_combined"`
	TickPhaseToleranceMs float64 `yaml:"tick_phase_tolerance_ms"`
	MarkerToleranceMs    float64 `yaml:"marker_tolerance_ms"`
	PMarkerToleranceMs   float64 `yaml:"p_marker_tolerance_ms"`
}

func (c SyncConfig) ToParams() epochsync.Params {
	p := epochsync.DefaultParams()
	if c.LockedThreshold != 0 {
		p.LockedThreshold = c.LockedThreshold
	}
	if c.MinRetain != 0 {
		p.MinRetain = c.MinRetain
	}
	if c.DecayNormal != 0 {
		p.DecayNormal = c.DecayNormal
	}
	if c.DecayRecovering != 0 {
		p.DecayRecovering = c.DecayRecovering
	}
	if c.WeightTick != 0 {
		p.Weights.Tick = c.WeightTick
	}
	if c.WeightMarker != 0 {
		p.Weights.Marker = c.WeightMarker
	}
	if c.WeightPMarker != 0 {
		p.Weights.PMarker = c.WeightPMarker
	}
	if c.WeightTickHole != 0 {
		p.Weights.TickHole = c.WeightTickHole
	}
	if c.WeightCombined != 0 {
		p.Weights.Combined = c.WeightCombined
	}
	if c.TickPhaseToleranceMs != 0 {
		p.TickPhaseToleranceMs = c.TickPhaseToleranceMs
	}
	if c.MarkerToleranceMs != 0 {
		p.MarkerToleranceMs = c.MarkerToleranceMs
	}
	if c.PMarkerToleranceMs != 0 {
		p.PMarkerToleranceMs = c.PMarkerToleranceMs
	}
	return p
}

// BCDConfig mirrors bcd.Params.
type BCDConfig struct {
	PositionGateToleranceSeconds int `yaml:"position_gate_tolerance_seconds"`
	MinPositionMarkers           int `yaml:"min_position_markers"`
}

func (c BCDConfig) ToParams() bcd.Params {
	p := bcd.DefaultParams()
	if c.PositionGateToleranceSeconds != 0 {
		p.PositionGateToleranceSeconds = c.PositionGateToleranceSeconds
	}
	if c.MinPositionMarkers != 0 {
		p.MinPositionMarkers = c.MinPositionMarkers
	}
	return p
}

// ToneTrackConfig lists the nominal frequencies C6 should track.
type ToneTrackConfig struct {
	NominalHz   []float64 `yaml:"nominal_hz"`
	ReferenceHz float64   `yaml:"reference_hz"`
}

// ControlConfig configures C9.
type ControlConfig struct {
	Listen          string `yaml:"listen"`
	ParamFile       string `yaml:"param_file"`
	Reload          bool   `yaml:"reload"`
	CmdRateLimit    int    `yaml:"cmd_rate_limit"` // commands/sec/source, default 10
}

// TelemetryConfig configures C10's sinks.
type TelemetryConfig struct {
	LineListen     string `yaml:"line_listen"`
	Prometheus     PrometheusSinkConfig `yaml:"prometheus"`
	MQTT           MQTTSinkConfig       `yaml:"mqtt"`
	WebSocket      WebSocketSinkConfig  `yaml:"websocket"`
	QueueDepth     int                  `yaml:"queue_depth"` // per-channel bound, default 256
}

type PrometheusSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type MQTTSinkConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type WebSocketSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig configures the per-component prefixed loggers.
type LoggingConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

const (
	defaultCmdRateLimit = 10
	defaultQueueDepth   = 256
)

// Load reads and parses filename, applying defaults to any field left at
// its zero value.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Control.CmdRateLimit == 0 {
		c.Control.CmdRateLimit = defaultCmdRateLimit
	}
	if c.Control.ParamFile == "" {
		c.Control.ParamFile = "wwvsync_params.conf"
	}
	if c.Telemetry.QueueDepth == 0 {
		c.Telemetry.QueueDepth = defaultQueueDepth
	}
	if len(c.ToneTrack.NominalHz) == 0 {
		c.ToneTrack.NominalHz = []float64{0, 500, 600}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Save atomically rewrites filename with the current configuration,
// using the same write-to-temp-then-rename discipline as the on-disk
// parameter file.
func Save(filename string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}
	return nil
}
