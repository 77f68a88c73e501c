// Package metrics exposes Prometheus metrics for the xcall daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/addiegupta/xcall/internal/callsession"
)

// SessionProvider exposes the call-session state machine to the collector.
type SessionProvider interface {
	State() callsession.State
	SessionsStarted() int64
}

// DurationProvider exposes the cumulative call duration in seconds.
type DurationProvider interface {
	StoredTotal() int64
}

// sessionStates is every state the session gauge reports a series for.
var sessionStates = []callsession.State{
	callsession.StateIdle,
	callsession.StateOriginating,
	callsession.StateAnswering,
	callsession.StateConnecting,
	callsession.StateEstablished,
	callsession.StateEnded,
}

// Collector is a prometheus.Collector that gathers xcall metrics at scrape
// time.
type Collector struct {
	session   SessionProvider
	duration  DurationProvider
	startTime time.Time

	// Metric descriptors.
	sessionActiveDesc *prometheus.Desc
	sessionStateDesc  *prometheus.Desc
	sessionsTotalDesc *prometheus.Desc
	callSecondsDesc   *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a new metrics collector. Either provider may be nil
// if unavailable.
func NewCollector(session SessionProvider, duration DurationProvider, startTime time.Time) *Collector {
	return &Collector{
		session:   session,
		duration:  duration,
		startTime: startTime,

		sessionActiveDesc: prometheus.NewDesc(
			"xcall_session_active",
			"Whether a call session is currently in flight (1=active)",
			nil, nil,
		),
		sessionStateDesc: prometheus.NewDesc(
			"xcall_session_state",
			"Current call-session state (1 for the active state)",
			[]string{"state"}, nil,
		),
		sessionsTotalDesc: prometheus.NewDesc(
			"xcall_sessions_started_total",
			"Total call sessions started since process start",
			nil, nil,
		),
		callSecondsDesc: prometheus.NewDesc(
			"xcall_call_seconds_total",
			"Cumulative call duration for this device in seconds",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"xcall_uptime_seconds",
			"Seconds since the xcall process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionActiveDesc
	ch <- c.sessionStateDesc
	ch <- c.sessionsTotalDesc
	ch <- c.callSecondsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries the providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.session != nil {
		current := c.session.State()

		active := 0.0
		if current.Active() {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.sessionActiveDesc, prometheus.GaugeValue, active)

		for _, s := range sessionStates {
			val := 0.0
			if s == current {
				val = 1.0
			}
			ch <- prometheus.MustNewConstMetric(c.sessionStateDesc, prometheus.GaugeValue, val, s.String())
		}

		ch <- prometheus.MustNewConstMetric(
			c.sessionsTotalDesc, prometheus.CounterValue,
			float64(c.session.SessionsStarted()),
		)
	}

	if c.duration != nil {
		ch <- prometheus.MustNewConstMetric(
			c.callSecondsDesc, prometheus.CounterValue,
			float64(c.duration.StoredTotal()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
