// Package metrics holds the player's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolutionPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medusa_player",
		Name:      "resolution_passes_total",
		Help:      "Playlist resolution passes by outcome.",
	}, []string{"outcome"})

	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "medusa_player",
		Name:      "resolution_duration_seconds",
		Help:      "Wall time of a resolution pass.",
		Buckets:   prometheus.DefBuckets,
	})

	SequenceLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "medusa_player",
		Name:      "sequence_items",
		Help:      "Items in the active playable sequence.",
	})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medusa_player",
		Name:      "media_downloads_total",
		Help:      "Media downloads by source and outcome.",
	}, []string{"source", "outcome"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "medusa_player",
		Name:      "media_cache_hits_total",
		Help:      "Media resolutions served from the local cache.",
	})

	RealtimeConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "medusa_player",
		Name:      "realtime_connected",
		Help:      "1 while the realtime channel is connected.",
	})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medusa_player",
		Name:      "realtime_events_total",
		Help:      "Inbound realtime events by name.",
	}, []string{"event"})

	PlaybackAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "medusa_player",
		Name:      "playback_advances_total",
		Help:      "Times the playback cursor moved to the next item.",
	})
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeEmpty   = "empty"
	OutcomeSkipped = "skipped"
)
