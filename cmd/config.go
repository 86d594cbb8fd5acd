package cmd

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/anskarl/swiftlearner/dataset"
)

type Config struct {
	Mode                     string
	DataDir                  string
	Download                 bool
	BaseURL                  string
	CacheDir                 string
	VerifyChecksums          bool
	Projection               string
	Samples                  int
	Shuffle                  bool
	Seed                     uint64
	SeedSet                  bool
	Split                    string
	Index                    int
	OutputFormat             string
	OutputFile               string
	Origin                   string
	HttpOrigin               string
	HttpScheme               string
	HttpAuth                 string
	ClassName                string
	DistanceMetric           string
	BatchSize                int
	Parallel                 int
	Labels                   string
	LabelMap                 map[string]string
	MetricsFile              string
	MetricsAddr              string
	MemoryMonitoringEnabled  bool
	MemoryMonitoringInterval int
	MemoryMonitoringFile     string
	PrometheusConfig         PrometheusConfig
	InfluxDBConfig           InfluxDBConfig
}

func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	// validate specific
	switch c.Mode {
	case "inspect":
		return c.validateInspect()
	case "render":
		return c.validateRender()
	case "export":
		return c.validateExport()
	case "import":
		return c.validateImport()
	default:
		return errors.Errorf("unrecognized mode %q", c.Mode)
	}
}

func (c *Config) validateCommon() error {
	dataDir, dataDirPresent := os.LookupEnv("MNIST_DATA_DIR")
	if dataDirPresent && c.DataDir == "" {
		c.DataDir = dataDir
	}

	if c.DataDir == "" && !c.Download {
		return errors.Errorf("a data directory must be set unless downloading")
	}

	if c.Samples < 0 {
		return errors.Errorf("samples must not be negative, got %d", c.Samples)
	}

	switch c.Projection {
	case "float", "double", "binary":
	case "":
		c.Projection = "float"
	default:
		return errors.Errorf("unsupported projection %q, must be one of [float, double, binary]",
			c.Projection)
	}

	return nil
}

func (c *Config) validateInspect() error {
	switch c.OutputFormat {
	case "text", "":
		c.OutputFormat = "text"
	case "json":
	default:
		return errors.Errorf("unsupported output format %q, must be one of [text, json]",
			c.OutputFormat)
	}

	return nil
}

func (c Config) validateRender() error {
	if _, err := parseSplit(c.Split); err != nil {
		return err
	}

	if c.Index < 0 {
		return errors.Errorf("index must not be negative")
	}

	return nil
}

func (c *Config) validateExport() error {
	switch c.OutputFormat {
	case "jsonl", "":
		c.OutputFormat = "jsonl"
	case "hdf5":
		if c.OutputFile == "" {
			return errors.Errorf("an output file must be provided for hdf5 exports")
		}
	default:
		return errors.Errorf("unsupported output format %q, must be one of [jsonl, hdf5]",
			c.OutputFormat)
	}

	return nil
}

func (c *Config) validateImport() error {
	if _, err := parseSplit(c.Split); err != nil {
		return err
	}

	if c.Origin == "" {
		return errors.Errorf("origin must be set")
	}

	if c.HttpOrigin == "" {
		return errors.Errorf("http origin must be set")
	}

	switch c.HttpScheme {
	case "http", "https":
	case "":
		c.HttpScheme = "http"
	default:
		return errors.Errorf("unsupported http scheme %q, must be one of [http, https]", c.HttpScheme)
	}

	if c.ClassName == "" {
		return errors.Errorf("a class name must be provided")
	}

	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be larger than 0")
	}

	if c.Parallel <= 0 {
		c.Parallel = 1
	}

	if c.DistanceMetric == "" {
		return errors.Errorf("distance metric must be set")
	}

	httpAuth, httpAuthPresent := os.LookupEnv("HTTP_AUTH")
	if httpAuthPresent {
		c.HttpAuth = httpAuth
	}

	return nil
}

func (c *Config) parseLabels() {
	result := make(map[string]string)
	pairs := strings.Split(c.Labels, ",")

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2) // SplitN to make sure we only split on the first "="
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}

	c.LabelMap = result
}

func (c Config) datasetOptions() dataset.Options {
	opts := dataset.Options{Samples: c.Samples}
	if c.SeedSet {
		opts.Seed = dataset.Seed(c.Seed)
	}
	return opts
}
