package cmd

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
)

func initSourceFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalConfig.DataDir,
		"data", "d", "", "Directory holding the MNIST files, gzipped or not (env MNIST_DATA_DIR)")
	flags.BoolVar(&globalConfig.Download,
		"download", false, "Download files missing from the data directory")
	flags.StringVar(&globalConfig.BaseURL,
		"baseURL", source.DefaultBaseURL, "Base URL of the gzip archives")
	flags.StringVar(&globalConfig.CacheDir,
		"cacheDir", "", "Directory to keep downloaded archives in. If none provided, archives are streamed")
	flags.BoolVar(&globalConfig.VerifyChecksums,
		"verify", false, "Verify archives against the published SHA-256 digests")
	flags.StringVar(&globalConfig.MetricsFile,
		"metricsOutput", "", "Write the collected metrics in Prometheus text format to this file")
	flags.StringVar(&globalConfig.MetricsAddr,
		"metricsAddr", "", "Serve the collected metrics on this address while running, e.g. :2112")
	flags.BoolVar(&globalConfig.PrometheusConfig.Enabled,
		"prometheus", false, "Push run metrics to a Prometheus push gateway")
	flags.StringVar(&globalConfig.PrometheusConfig.PushURL,
		"prometheusURL", "", "Prometheus push gateway URL")
	flags.StringVar(&globalConfig.PrometheusConfig.JobName,
		"prometheusJob", "mnist", "Prometheus push gateway job name")
	flags.BoolVar(&globalConfig.MemoryMonitoringEnabled,
		"memoryMonitoring", false, "Sample heap metrics while the command runs")
	flags.IntVar(&globalConfig.MemoryMonitoringInterval,
		"memoryMonitoringInterval", 1, "Memory sampling interval in seconds")
	flags.StringVar(&globalConfig.MemoryMonitoringFile,
		"memoryMonitoringFile", "", "Memory metrics file name, written below ./results")
	flags.StringVar(&globalConfig.Labels,
		"labels", "", "Labels of format key1=value1,key2=value2,...")
}

// newSource prefers the local directory and, when downloading is enabled,
// falls back to the remote archives.
func newSource(cfg *Config) source.Source {
	local := source.Dir{Path: cfg.DataDir, VerifyChecksums: cfg.VerifyChecksums}
	if !cfg.Download {
		return local
	}

	remote := source.NewHTTP(cfg.BaseURL, cfg.CacheDir)
	remote.VerifyChecksums = cfg.VerifyChecksums
	if cfg.DataDir == "" {
		return remote
	}
	return source.First(local, remote)
}

// newLoader builds the loader for a command together with the registry its
// metrics are recorded on.
func newLoader(cfg *Config) (*dataset.Loader, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	loader := dataset.NewLoader(newSource(cfg), dataset.LoaderConfig{
		Logger:  log.WithField("data", cfg.DataDir),
		Metrics: dataset.NewMetrics(registry),
	})
	return loader, registry
}

func parseSplit(s string) (source.Split, error) {
	switch s {
	case "train", "":
		return source.Train, nil
	case "test":
		return source.Test, nil
	default:
		return 0, errors.Errorf("unsupported split %q, must be one of [train, test]", s)
	}
}

func addDatasetFlags(flags *pflag.FlagSet) {
	flags.IntVarP(&globalConfig.Samples,
		"samples", "n", idx.TrainSize, "Maximum number of examples per split")
	flags.StringVarP(&globalConfig.Projection,
		"projection", "p", "float", "Vector projection, one of [float, double, binary]")
	flags.BoolVar(&globalConfig.Shuffle,
		"shuffle", false, "Shuffle the training split, the test split keeps its order")
	flags.Uint64Var(&globalConfig.Seed,
		"seed", 0, "Seed of the training shuffle. If none provided, every run differs")
}
