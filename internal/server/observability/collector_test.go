// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type staticSource struct {
	data MetricsData
}

func (s *staticSource) MetricsSnapshot() MetricsData { return s.data }

func TestNewCollector_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &staticSource{data: MetricsData{
		TrafficIn:   100,
		TrafficOut:  200,
		ActiveConns: 3,
		Sessions:    2,
		Files:       10,
	}}

	c := NewCollector(reg, src)
	if c.Commands == nil {
		t.Fatal("Commands is nil")
	}

	c.ObserveCommand("LoginRequest", true)
	c.ObserveCommand("LoginRequest", false)
	c.ObserveDuration("LoginRequest", 0.042)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	want := map[string]bool{
		"ndrive_server_commands_total":           false,
		"ndrive_server_request_duration_seconds": false,
		"ndrive_server_traffic_in_bytes_total":   false,
		"ndrive_server_traffic_out_bytes_total":  false,
		"ndrive_server_active_connections":       false,
		"ndrive_server_active_sessions":          false,
		"ndrive_server_catalog_files":            false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestCollector_GaugeReadsSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &staticSource{data: MetricsData{ActiveConns: 7}}
	NewCollector(reg, src)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "ndrive_server_active_connections" {
			continue
		}
		metrics := mf.GetMetric()
		if len(metrics) != 1 {
			t.Fatalf("expected 1 metric, got %d", len(metrics))
		}
		if got := metrics[0].GetGauge().GetValue(); got != 7 {
			t.Errorf("expected active_connections 7, got %f", got)
		}
		return
	}
	t.Fatal("ndrive_server_active_connections not found")
}

func TestCollector_NilSafeObserve(t *testing.T) {
	var c *Collector
	// Não deve entrar em pânico com collector desabilitado.
	c.ObserveCommand("LoginRequest", true)
	c.ObserveDuration("LoginRequest", 0.001)
}
