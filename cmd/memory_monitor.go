package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const resultsDir = "results"

type MemoryMetricEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Memstats
}

// MemoryMonitor samples the heap gauges of a registry carrying the Go
// collector while a command decodes, and writes the samples below
// ./results when stopped. A disabled monitor does nothing.
type MemoryMonitor struct {
	enabled  bool
	interval time.Duration
	path     string
	gatherer prometheus.Gatherer

	mu      sync.Mutex
	samples []MemoryMetricEntry
	stop    chan struct{}
	done    chan struct{}
}

func NewMemoryMonitor(cfg *Config, gatherer prometheus.Gatherer) *MemoryMonitor {
	filename := cfg.MemoryMonitoringFile
	if filename == "" {
		filename = fmt.Sprintf("memory_metrics_%d.json", time.Now().Unix())
	}

	interval := time.Duration(cfg.MemoryMonitoringInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &MemoryMonitor{
		enabled:  cfg.MemoryMonitoringEnabled,
		interval: interval,
		path:     filepath.Join(resultsDir, filename),
		gatherer: gatherer,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *MemoryMonitor) Start() {
	if !m.enabled {
		return
	}

	log.WithFields(log.Fields{"interval": m.interval, "file": m.path}).Info("Starting memory monitoring")
	go m.run()
}

// Stop takes a final sample and writes all samples to the results file.
func (m *MemoryMonitor) Stop() {
	if !m.enabled {
		return
	}

	close(m.stop)
	<-m.done

	if err := m.write(); err != nil {
		log.WithError(err).Error("Failed to write memory metrics to file")
		return
	}
	log.WithFields(log.Fields{"file": m.path, "entries": len(m.samples)}).Info("Memory metrics written to file")
}

func (m *MemoryMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-m.stop:
			m.sample()
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *MemoryMonitor) sample() {
	memstats, err := readMemoryMetrics(m.gatherer)
	if err != nil {
		log.WithError(err).Warn("Failed to read memory metrics")
		return
	}

	m.mu.Lock()
	m.samples = append(m.samples, MemoryMetricEntry{Timestamp: time.Now(), Memstats: *memstats})
	m.mu.Unlock()

	log.WithField("heap_alloc_mb", memstats.HeapAllocBytes/1024/1024).Debug("Recorded memory metric")
}

func (m *MemoryMonitor) write() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.Wrap(err, "create results directory")
	}

	data, err := json.MarshalIndent(m.samples, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal memory metrics")
	}

	return errors.Wrap(os.WriteFile(m.path, data, 0o644), "write memory metrics")
}
