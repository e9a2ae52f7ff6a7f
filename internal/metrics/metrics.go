package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed composition metrics
var (
	FeedPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkfall_feed_pages_total",
		Help: "Feed pages composed, by whether the page was terminal",
	}, []string{"terminal"})

	FeedPageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forkfall_feed_page_size",
		Help:    "Number of forks returned per feed page",
		Buckets: []float64{0, 1, 5, 10, 20, 30, 50},
	})

	FeedCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forkfall_feed_candidates",
		Help:    "Visible candidates considered per feed request",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11),
	})

	DiversitySwaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkfall_feed_diversity_swaps_total",
		Help: "Swaps made to satisfy lane and mutation-type quotas",
	})

	CursorResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkfall_feed_cursor_resets_total",
		Help: "Cursors that failed to decode and fell back to the first page",
	})
)

// Guard and moderation metrics
var (
	GuardDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkfall_guard_denials_total",
		Help: "Writes denied by the rate and trust guard",
	}, []string{"kind", "reason"})

	ForksHidden = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkfall_moderation_hidden_total",
		Help: "Forks that crossed the auto-hide report threshold",
	})

	TrustDecrements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forkfall_moderation_trust_decrements_total",
		Help: "Trust score decrements applied for actioned reports",
	})

	MaskRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forkfall_identity_masks_issued_total",
		Help: "Masks issued, by whether they replaced an expired mask",
	}, []string{"rotation"})
)
