package metrics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

// RelayMetrics records pipeline activity on its own prometheus registry.
type RelayMetrics struct {
	Registry *prometheus.Registry

	IngestedTotal       *prometheus.CounterVec
	DeliveredTotal      *prometheus.CounterVec
	DeliveryFailedTotal *prometheus.CounterVec
	RateLimitWaitsTotal *prometheus.CounterVec
	WindowRemaining     *prometheus.GaugeVec
	WindowResetSeconds  *prometheus.GaugeVec
	Submissions         *prometheus.GaugeVec
}

var _ ports.Recorder = (*RelayMetrics)(nil)

// New builds the collectors and registers them, plus the Go and process collectors.
func New() *RelayMetrics {
	m := &RelayMetrics{
		Registry: prometheus.NewRegistry(),
		IngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_ingested_total",
				Help: "Submissions upserted per scope, by resulting state",
			},
			[]string{"scope", "state"},
		),
		DeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_delivered_total",
				Help: "Submissions delivered to a destination",
			},
			[]string{"scope"},
		),
		DeliveryFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_delivery_failed_total",
				Help: "Delivery attempts rejected by a destination",
			},
			[]string{"scope"},
		),
		RateLimitWaitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rate_limit_waits_total",
				Help: "Backoff sleeps taken while the destination window was exhausted",
			},
			[]string{"scope"},
		),
		WindowRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_window_remaining",
				Help: "Requests left in the destination's current rate-limit window",
			},
			[]string{"channel"},
		),
		WindowResetSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_window_reset_timestamp_seconds",
				Help: "Unix time at which the destination's rate-limit window resets",
			},
			[]string{"channel"},
		),
		Submissions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_submissions",
				Help: "Tracked submissions by lifecycle state",
			},
			[]string{"state"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IngestedTotal,
		m.DeliveredTotal,
		m.DeliveryFailedTotal,
		m.RateLimitWaitsTotal,
		m.WindowRemaining,
		m.WindowResetSeconds,
		m.Submissions,
	)

	return m
}

func (m *RelayMetrics) Ingested(scope, outcome string) {
	m.IngestedTotal.WithLabelValues(scope, outcome).Inc()
}

func (m *RelayMetrics) Delivered(scope string) {
	m.DeliveredTotal.WithLabelValues(scope).Inc()
}

func (m *RelayMetrics) DeliveryFailed(scope string) {
	m.DeliveryFailedTotal.WithLabelValues(scope).Inc()
}

func (m *RelayMetrics) RateLimitWait(scope string) {
	m.RateLimitWaitsTotal.WithLabelValues(scope).Inc()
}

// Window publishes a channel's rate-limit window. Scopes sharing a channel
// share one window.
func (m *RelayMetrics) Window(channelID string, w domain.RateWindow) {
	channel := ChannelLabel(channelID)
	m.WindowRemaining.WithLabelValues(channel).Set(float64(w.Remaining))
	if w.ResetAt.IsZero() {
		m.WindowResetSeconds.WithLabelValues(channel).Set(0)
		return
	}
	m.WindowResetSeconds.WithLabelValues(channel).Set(float64(w.ResetAt.UnixNano()) / 1e9)
}

// ChannelLabel drops the credential half of "<webhookID>/<token>" channel ids.
func ChannelLabel(channelID string) string {
	id, _, _ := strings.Cut(channelID, "/")
	return id
}

// ObserveStore refreshes the per-state gauge from the store.
func (m *RelayMetrics) ObserveStore(ctx context.Context, store ports.SubmissionStore) error {
	counts, err := store.CountByState(ctx, "")
	if err != nil {
		return err
	}
	for _, state := range []domain.State{domain.StateInitial, domain.StateReady, domain.StateDelivered} {
		m.Submissions.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
	return nil
}

// CollectStore polls the store every interval until ctx is done.
func (m *RelayMetrics) CollectStore(ctx context.Context, store ports.SubmissionStore, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.ObserveStore(ctx, store); err != nil && ctx.Err() == nil {
			log.Warn("store metrics collection failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
