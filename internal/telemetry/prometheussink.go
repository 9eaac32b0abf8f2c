package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink exports the numeric fields of a bounded set of channels
// as gauges: one GaugeVec per measurement, labelled.
type PrometheusSink struct {
	syncConfidence  *prometheus.GaugeVec
	syncState       *prometheus.GaugeVec
	tickInterval    prometheus.Gauge
	tickFalseReject prometheus.Gauge
	droppedRecords  prometheus.Gauge
	toneOffsetPPM   *prometheus.GaugeVec
	toneSNR         *prometheus.GaugeVec
	noiseFloor      *prometheus.GaugeVec
}

// NewPrometheusSink registers the decoder's gauges against reg (pass
// prometheus.DefaultRegisterer for the process-global registry).
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		syncConfidence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwvsync_sync_confidence",
			Help: "Current sync-detector confidence, 0..1",
		}, nil),
		syncState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwvsync_sync_state",
			Help: "Current sync-detector state (0=ACQUIRING,1=TENTATIVE,2=LOCKED,3=RECOVERING)",
		}, nil),
		tickInterval: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wwvsync_tick_interval_ms",
			Help: "Most recent inter-tick interval in milliseconds",
		}),
		tickFalseReject: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wwvsync_tick_false_rejections_total",
			Help: "Running count of tick candidates rejected after threshold crossing",
		}),
		droppedRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wwvsync_telemetry_dropped_total",
			Help: "Running count of telemetry records dropped by the lossy bus",
		}),
		toneOffsetPPM: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwvsync_tone_offset_ppm",
			Help: "Tone tracker frequency offset in parts per million",
		}, []string{"tone"}),
		toneSNR: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwvsync_tone_snr_db",
			Help: "Tone tracker measured SNR in dB",
		}, []string{"tone"}),
		noiseFloor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wwvsync_channel_noise_floor",
			Help: "Per-channel noise floor estimate",
		}, []string{"channel"}),
	}
}

// Deliver updates the relevant gauge(s) for rec.Channel. Any channel not
// named below whose record has at least four fields is read as a
// tone-tracker record (measured_hz, offset_hz, ppm, snr, ...) labelled
// by its channel name; shorter records on such channels are ignored.
func (s *PrometheusSink) Deliver(rec Record) {
	switch rec.Channel {
	case "SYNC":
		if len(rec.Fields) < 3 {
			return
		}
		if conf, err := strconv.ParseFloat(rec.Fields[2], 64); err == nil {
			s.syncConfidence.WithLabelValues().Set(conf)
		}
		s.syncState.WithLabelValues().Set(syncStateOrdinal(rec.Fields[0]))
	case "TICK":
		if len(rec.Fields) < 4 {
			return
		}
		if interval, err := strconv.ParseFloat(rec.Fields[3], 64); err == nil {
			s.tickInterval.Set(interval)
		}
	case "CTRL_DROPPED":
		if len(rec.Fields) < 1 {
			return
		}
		if n, err := strconv.ParseFloat(rec.Fields[0], 64); err == nil {
			s.droppedRecords.Set(n)
		}
	case "CHAN":
		if len(rec.Fields) < 2 {
			return
		}
		if nf, err := strconv.ParseFloat(rec.Fields[1], 64); err == nil {
			s.noiseFloor.WithLabelValues("default").Set(nf)
		}
	default:
		if len(rec.Fields) >= 4 {
			tone := rec.Channel
			if ppm, err := strconv.ParseFloat(rec.Fields[2], 64); err == nil {
				s.toneOffsetPPM.WithLabelValues(tone).Set(ppm)
			}
			if snr, err := strconv.ParseFloat(rec.Fields[3], 64); err == nil {
				s.toneSNR.WithLabelValues(tone).Set(snr)
			}
		}
	}
}

func syncStateOrdinal(state string) float64 {
	switch state {
	case "ACQUIRING":
		return 0
	case "TENTATIVE":
		return 1
	case "LOCKED":
		return 2
	case "RECOVERING":
		return 3
	default:
		return -1
	}
}
