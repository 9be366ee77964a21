// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package metrics exposes meter readings and exchange counters to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/meterstat/internal/stats"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

const namespace = "mercury"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// MeterMetrics holds the gauges and counters for one meter
type MeterMetrics struct {
	Voltage       *prometheus.GaugeVec // labels: phase
	Current       *prometheus.GaugeVec // labels: phase
	Angle         *prometheus.GaugeVec // labels: phase
	Power         *prometheus.GaugeVec // labels: phase (sum included)
	ReactivePower *prometheus.GaugeVec // labels: phase (sum included)
	CosF          *prometheus.GaugeVec // labels: phase (sum included)
	Frequency     prometheus.Gauge
	Energy        *prometheus.GaugeVec // labels: direction
	LastSuccess   prometheus.Gauge

	Exchanges *prometheus.CounterVec // labels: result
	Reinits   prometheus.Counter
	RTT       prometheus.Histogram
	Polls     *prometheus.CounterVec // labels: result
}

// NewMeterMetrics registers and returns the metrics for the meter at address
func NewMeterMetrics(reg prometheus.Registerer, address byte) *MeterMetrics {
	labels := prometheus.Labels{"meter": strconv.Itoa(int(address))}

	gaugeVec := func(name, help, label string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{label})
	}

	m := &MeterMetrics{
		Voltage:       gaugeVec("voltage_volts", "Phase voltage.", "phase"),
		Current:       gaugeVec("current_amperes", "Phase current.", "phase"),
		Angle:         gaugeVec("phase_angle_degrees", "Angle between phase voltages.", "phase"),
		Power:         gaugeVec("active_power_watts", "Active power.", "phase"),
		ReactivePower: gaugeVec("reactive_power_vars", "Reactive power.", "phase"),
		CosF:          gaugeVec("power_factor", "Power factor.", "phase"),
		Energy:        gaugeVec("energy_total", "Accumulated energy since reset in kWh or kvarh.", "direction"),
		Frequency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "frequency_hertz",
			Help:        "Grid frequency.",
			ConstLabels: labels,
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Time of the last complete snapshot.",
			ConstLabels: labels,
		}),
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "exchanges_total",
			Help:        "Request/response exchanges by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		Reinits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "channel_reinits_total",
			Help:        "Channel re-initializations triggered by the meter.",
			ConstLabels: labels,
		}),
		RTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "exchange_duration_seconds",
			Help:        "Round trip time of exchanges.",
			ConstLabels: labels,
			Buckets:     []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "polls_total",
			Help:        "Snapshot polls by result.",
			ConstLabels: labels,
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.Voltage, m.Current, m.Angle, m.Power, m.ReactivePower, m.CosF,
		m.Frequency, m.Energy, m.LastSuccess,
		m.Exchanges, m.Reinits, m.RTT, m.Polls,
	)
	return m
}

func setPhases(g *prometheus.GaugeVec, p mercury.PhaseValues) {
	g.WithLabelValues("1").Set(p.P1)
	g.WithLabelValues("2").Set(p.P2)
	g.WithLabelValues("3").Set(p.P3)
}

func setPhasesWithSum(g *prometheus.GaugeVec, p mercury.PhaseSumValues) {
	g.WithLabelValues("sum").Set(p.Sum)
	setPhases(g, mercury.PhaseValues{P1: p.P1, P2: p.P2, P3: p.P3})
}

// SetSnapshot updates the gauges from s
func (m *MeterMetrics) SetSnapshot(s mercury.Snapshot) {
	setPhases(m.Voltage, s.Voltage)
	setPhases(m.Current, s.Current)
	setPhases(m.Angle, s.Angle)
	setPhasesWithSum(m.Power, s.Power)
	setPhasesWithSum(m.ReactivePower, s.ReactivePower)
	setPhasesWithSum(m.CosF, s.CosF)
	m.Frequency.Set(s.Frequency.F)

	m.Energy.WithLabelValues("active").Set(s.Energy.Active)
	m.Energy.WithLabelValues("reverse_active").Set(s.Energy.ReverseActive)
	m.Energy.WithLabelValues("reactive").Set(s.Energy.Reactive)
	m.Energy.WithLabelValues("reverse_reactive").Set(s.Energy.ReverseReactive)

	m.LastSuccess.Set(float64(s.Timestamp.UnixNano()) / 1e9)
}

// ObservePoll counts a snapshot poll
func (m *MeterMetrics) ObservePoll(err error) {
	m.Polls.WithLabelValues(stats.Classify(err)).Inc()
}

// ObserveExchange implements mercury.Observer
func (m *MeterMetrics) ObserveExchange(ev mercury.ExchangeEvent) {
	switch {
	case ev.InitRequired && !ev.Retry:
		m.Reinits.Inc()
		m.Exchanges.WithLabelValues("init_required").Inc()
		return
	case ev.InitRequired:
		m.Exchanges.WithLabelValues(stats.KindInitProblem).Inc()
		return
	}

	kind := stats.Classify(ev.Err)
	m.Exchanges.WithLabelValues(kind).Inc()
	if kind == stats.KindOK {
		m.RTT.Observe(ev.Duration.Seconds())
	}
}
