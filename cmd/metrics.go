package cmd

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Memstats struct {
	HeapAllocBytes float64 `json:"heap_alloc_bytes"`
	HeapInuseBytes float64 `json:"heap_inuse_bytes"`
	HeapSysBytes   float64 `json:"heap_sys_bytes"`
}

// readMemoryMetrics picks the heap gauges exported by the Go collector out of
// gatherer. Gauges that are not registered stay zero.
func readMemoryMetrics(gatherer prometheus.Gatherer) (*Memstats, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gather")
	}

	metrics := make(map[string]float64, len(families))
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 || mf.GetMetric()[0].GetGauge() == nil {
			continue
		}
		metrics[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}

	var memstats Memstats

	if value, ok := metrics["go_memstats_heap_alloc_bytes"]; ok {
		memstats.HeapAllocBytes = value
	}

	if value, ok := metrics["go_memstats_heap_inuse_bytes"]; ok {
		memstats.HeapInuseBytes = value
	}

	if value, ok := metrics["go_memstats_heap_sys_bytes"]; ok {
		memstats.HeapSysBytes = value
	}

	return &memstats, nil
}
