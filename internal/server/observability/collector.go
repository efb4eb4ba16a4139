// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "ndrive"
	subsystem = "server"
)

// Collector agrupa as métricas Prometheus do ndrive-server.
//
// Counters e gauges de leitura (tráfego, sessões, catálogo) são funcionais:
// a cada scrape o valor vem direto do MetricsSource, sem estado duplicado.
// Commands e Durations são as únicas métricas incrementadas no caminho de
// dispatch.
type Collector struct {
	// Commands conta comandos processados, por nome e resultado ("ok" | "error").
	Commands *prometheus.CounterVec
	// Durations mede o tempo de processamento de cada comando.
	Durations *prometheus.HistogramVec
}

// MetricsSource fornece as leituras instantâneas usadas pelas métricas funcionais.
// Implementado pelo server.Handler.
type MetricsSource interface {
	MetricsSnapshot() MetricsData
}

// NewCollector cria as métricas e as registra no Registerer dado.
// Se reg for nil, usa prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, src MetricsSource) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commands_total",
		Help:      "Total protocol commands processed, by command name and result.",
	}, []string{"command", "result"})

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Time spent handling each protocol command.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"command"})

	reg.MustRegister(commands, durations)

	counterFunc := func(name, help string, read func(MetricsData) int64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(src.MetricsSnapshot())) })
	}
	gaugeFunc := func(name, help string, read func(MetricsData) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.MetricsSnapshot()) })
	}

	reg.MustRegister(
		counterFunc("traffic_in_bytes_total", "Total bytes received from clients.",
			func(d MetricsData) int64 { return d.TrafficIn }),
		counterFunc("traffic_out_bytes_total", "Total bytes sent to clients.",
			func(d MetricsData) int64 { return d.TrafficOut }),
		counterFunc("disk_read_bytes_total", "Total bytes read from storage.",
			func(d MetricsData) int64 { return d.DiskRead }),
		counterFunc("disk_write_bytes_total", "Total bytes written to storage.",
			func(d MetricsData) int64 { return d.DiskWrite }),
		gaugeFunc("active_connections", "TCP connections currently open.",
			func(d MetricsData) float64 { return float64(d.ActiveConns) }),
		gaugeFunc("active_sessions", "Sessions currently registered.",
			func(d MetricsData) float64 { return float64(d.Sessions) }),
		gaugeFunc("users", "User accounts registered.",
			func(d MetricsData) float64 { return float64(d.Users) }),
		gaugeFunc("catalog_files", "File entries in the metadata catalog.",
			func(d MetricsData) float64 { return float64(d.Files) }),
		gaugeFunc("catalog_directories", "Directory entries in the metadata catalog.",
			func(d MetricsData) float64 { return float64(d.Directories) }),
		gaugeFunc("stored_bytes", "Bytes of complete files in the catalog.",
			func(d MetricsData) float64 { return float64(d.StoredBytes) }),
	)

	return &Collector{Commands: commands, Durations: durations}
}

// ObserveCommand incrementa o contador de comandos. Seguro com Collector nil
// para instalações sem a API de administração.
func (c *Collector) ObserveCommand(command string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.Commands.WithLabelValues(command, result).Inc()
}

// ObserveDuration registra o tempo de processamento de um comando.
// Seguro com Collector nil.
func (c *Collector) ObserveDuration(command string, seconds float64) {
	if c == nil {
		return
	}
	c.Durations.WithLabelValues(command).Observe(seconds)
}
