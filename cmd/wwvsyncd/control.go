package main

import (
	"log"

	"github.com/hfwwv/wwvsync/internal/control"
	"github.com/hfwwv/wwvsync/internal/pipeline"
)

// buildControlStore registers every tunable parameter the running
// pipeline exposes, each validated against its documented range and
// wired to push accepted values straight into the owning component.
func buildControlStore(pipe *pipeline.Pipeline, paramFile string, logger *log.Logger) *control.Store {
	specs := map[string]control.Validator{
		"tick.threshold_mult":  control.Range(1.0, 5.0),
		"tick.adapt_down":      control.Range(0.9, 0.999),
		"tick.adapt_up":        control.Range(0.001, 0.1),
		"tick.min_duration_ms": control.Range(1.0, 10.0),

		"marker.threshold_mult":  control.Range(2.0, 5.0),
		"marker.noise_adapt":     control.Range(0.0001, 0.01),
		"marker.min_duration_ms": control.Range(300, 700),

		"sync.locked_threshold": control.Range(0.5, 0.9),
		"sync.min_retain":       control.Range(0.01, 0.2),
		"sync.decay_normal":     control.Range(0.99, 0.9999),
		"sync.decay_recovering": control.Range(0.90, 0.99),

		"sync.weight_tick":      control.Range(0.0, 1.0),
		"sync.weight_marker":    control.Range(0.0, 1.0),
		"sync.weight_pmarker":   control.Range(0.0, 1.0),
		"sync.weight_tick_hole": control.Range(0.0, 1.0),
		"sync.weight_combined":  control.Range(0.0, 1.0),

		"sync.tick_phase_tolerance_ms": control.Range(0, 1000),
		"sync.marker_tolerance_ms":     control.Range(0, 2000),
		"sync.p_marker_tolerance_ms":   control.Range(0, 2000),

		"bcd.position_gate_tolerance_seconds": control.Range(0, 5),
		"bcd.min_position_markers":            control.Range(1, 7),
	}

	defaults := map[string]float64{
		"tick.threshold_mult":  pipe.TickParams().ThresholdMult,
		"tick.adapt_down":      pipe.TickParams().AdaptDown,
		"tick.adapt_up":        pipe.TickParams().AdaptUp,
		"tick.min_duration_ms": pipe.TickParams().MinDurationMs,

		"marker.threshold_mult":  pipe.MarkerParams().ThresholdMult,
		"marker.noise_adapt":     pipe.MarkerParams().NoiseAdapt,
		"marker.min_duration_ms": pipe.MarkerParams().MinDurationMs,

		"sync.locked_threshold": pipe.SyncParams().LockedThreshold,
		"sync.min_retain":       pipe.SyncParams().MinRetain,
		"sync.decay_normal":     pipe.SyncParams().DecayNormal,
		"sync.decay_recovering": pipe.SyncParams().DecayRecovering,

		"sync.weight_tick":      pipe.SyncParams().Weights.Tick,
		"sync.weight_marker":    pipe.SyncParams().Weights.Marker,
		"sync.weight_pmarker":   pipe.SyncParams().Weights.PMarker,
		"sync.weight_tick_hole": pipe.SyncParams().Weights.TickHole,
		"sync.weight_combined":  pipe.SyncParams().Weights.Combined,

		"sync.tick_phase_tolerance_ms": pipe.SyncParams().TickPhaseToleranceMs,
		"sync.marker_tolerance_ms":     pipe.SyncParams().MarkerToleranceMs,
		"sync.p_marker_tolerance_ms":   pipe.SyncParams().PMarkerToleranceMs,

		"bcd.position_gate_tolerance_seconds": float64(pipe.BCDParams().PositionGateToleranceSeconds),
		"bcd.min_position_markers":            float64(pipe.BCDParams().MinPositionMarkers),
	}

	onSet := func(name string, value float64) {
		applyParam(pipe, name, value)
		if paramFile == "" {
			return
		}
		if err := control.FromSnapshot(allParams(pipe)).WriteFile(paramFile); err != nil {
			logger.Printf("control: write param file: %v", err)
		}
	}

	return control.NewStore(specs, defaults, onSet)
}

// allParams snapshots every registered parameter for persistence.
func allParams(pipe *pipeline.Pipeline) map[string]float64 {
	tp, mp, sp, bp := pipe.TickParams(), pipe.MarkerParams(), pipe.SyncParams(), pipe.BCDParams()
	return map[string]float64{
		"tick.threshold_mult":  tp.ThresholdMult,
		"tick.adapt_down":      tp.AdaptDown,
		"tick.adapt_up":        tp.AdaptUp,
		"tick.min_duration_ms": tp.MinDurationMs,

		"marker.threshold_mult":  mp.ThresholdMult,
		"marker.noise_adapt":     mp.NoiseAdapt,
		"marker.min_duration_ms": mp.MinDurationMs,

		"sync.locked_threshold": sp.LockedThreshold,
		"sync.min_retain":       sp.MinRetain,
		"sync.decay_normal":     sp.DecayNormal,
		"sync.decay_recovering": sp.DecayRecovering,

		"sync.weight_tick":      sp.Weights.Tick,
		"sync.weight_marker":    sp.Weights.Marker,
		"sync.weight_pmarker":   sp.Weights.PMarker,
		"sync.weight_tick_hole": sp.Weights.TickHole,
		"sync.weight_combined":  sp.Weights.Combined,

		"sync.tick_phase_tolerance_ms": sp.TickPhaseToleranceMs,
		"sync.marker_tolerance_ms":     sp.MarkerToleranceMs,
		"sync.p_marker_tolerance_ms":   sp.PMarkerToleranceMs,

		"bcd.position_gate_tolerance_seconds": float64(bp.PositionGateToleranceSeconds),
		"bcd.min_position_markers":            float64(bp.MinPositionMarkers),
	}
}

// applyParam mutates the single named field of the owning component's
// parameter set and pushes the whole set back in.
func applyParam(pipe *pipeline.Pipeline, name string, value float64) {
	switch name {
	case "tick.threshold_mult":
		p := pipe.TickParams()
		p.ThresholdMult = value
		pipe.SetTickParams(p)
	case "tick.adapt_down":
		p := pipe.TickParams()
		p.AdaptDown = value
		pipe.SetTickParams(p)
	case "tick.adapt_up":
		p := pipe.TickParams()
		p.AdaptUp = value
		pipe.SetTickParams(p)
	case "tick.min_duration_ms":
		p := pipe.TickParams()
		p.MinDurationMs = value
		pipe.SetTickParams(p)

	case "marker.threshold_mult":
		p := pipe.MarkerParams()
		p.ThresholdMult = value
		pipe.SetMarkerParams(p)
	case "marker.noise_adapt":
		p := pipe.MarkerParams()
		p.NoiseAdapt = value
		pipe.SetMarkerParams(p)
	case "marker.min_duration_ms":
		p := pipe.MarkerParams()
		p.MinDurationMs = value
		pipe.SetMarkerParams(p)

	case "sync.locked_threshold":
		p := pipe.SyncParams()
		p.LockedThreshold = value
		pipe.SetSyncParams(p)
	case "sync.min_retain":
		p := pipe.SyncParams()
		p.MinRetain = value
		pipe.SetSyncParams(p)
	case "sync.decay_normal":
		p := pipe.SyncParams()
		p.DecayNormal = value
		pipe.SetSyncParams(p)
	case "sync.decay_recovering":
		p := pipe.SyncParams()
		p.DecayRecovering = value
		pipe.SetSyncParams(p)

	case "sync.weight_tick":
		p := pipe.SyncParams()
		p.Weights.Tick = value
		pipe.SetSyncParams(p)
	case "sync.weight_marker":
		p := pipe.SyncParams()
		p.Weights.Marker = value
		pipe.SetSyncParams(p)
	case "sync.weight_pmarker":
		p := pipe.SyncParams()
		p.Weights.PMarker = value
		pipe.SetSyncParams(p)
	case "sync.weight_tick_hole":
		p := pipe.SyncParams()
		p.Weights.TickHole = value
		pipe.SetSyncParams(p)
	case "sync.weight_combined":
		p := pipe.SyncParams()
		p.Weights.Combined = value
		pipe.SetSyncParams(p)

	case "sync.tick_phase_tolerance_ms":
		p := pipe.SyncParams()
		p.TickPhaseToleranceMs = value
		pipe.SetSyncParams(p)
	case "sync.marker_tolerance_ms":
		p := pipe.SyncParams()
		p.MarkerToleranceMs = value
		pipe.SetSyncParams(p)
	case "sync.p_marker_tolerance_ms":
		p := pipe.SyncParams()
		p.PMarkerToleranceMs = value
		pipe.SetSyncParams(p)

	case "bcd.position_gate_tolerance_seconds":
		p := pipe.BCDParams()
		p.PositionGateToleranceSeconds = int(value)
		pipe.SetBCDParams(p)
	case "bcd.min_position_markers":
		p := pipe.BCDParams()
		p.MinPositionMarkers = int(value)
		pipe.SetBCDParams(p)
	}
}

// loadParamFile applies any persisted parameters found at path through the
// same validated Set path a control-plane client would use, leaving the
// store's default in place (and logging a warning) for any value that
// fails range validation.
func loadParamFile(store *control.Store, path string, logger *log.Logger) {
	pf, err := control.ReadParamFile(path)
	if err != nil {
		logger.Printf("control: read param file: %v", err)
		return
	}
	for name, value := range pf.Flatten() {
		if _, err := store.Set(name, value); err != nil {
			logger.Printf("control: param file %s: %s=%v rejected, keeping default: %v", path, name, value, err)
		}
	}
}
