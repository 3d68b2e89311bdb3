package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event metrics
	WatchedEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reminderbot_watched_events",
			Help: "Number of events currently held in the event cache",
		},
	)

	ReactionUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminderbot_reaction_updates_total",
			Help: "Total number of reconciliation updates by kind",
		},
		[]string{"kind"},
	)

	// Reminder metrics
	RemindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminderbot_reminders_sent_total",
			Help: "Total number of reminder messages sent",
		},
	)

	MentionsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminderbot_mentions_sent_total",
			Help: "Total number of users mentioned in reminders",
		},
	)

	DispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminderbot_dispatch_failures_total",
			Help: "Total number of failed reminder dispatches by error kind",
		},
		[]string{"kind"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminderbot_tick_duration_seconds",
			Help:    "Time taken by one scheduler tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Command metrics
	CommandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminderbot_commands_total",
			Help: "Total number of text commands handled by command and result",
		},
		[]string{"command", "result"},
	)

	// Storage metrics
	SyncedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminderbot_synced_events_total",
			Help: "Total number of events written to the repository by cache syncs",
		},
	)

	SyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminderbot_sync_failures_total",
			Help: "Total number of per-event repository write failures during syncs",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(WatchedEvents)
	prometheus.MustRegister(ReactionUpdates)
	prometheus.MustRegister(RemindersSent)
	prometheus.MustRegister(MentionsSent)
	prometheus.MustRegister(DispatchFailures)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(CommandsHandled)
	prometheus.MustRegister(SyncedEvents)
	prometheus.MustRegister(SyncFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
