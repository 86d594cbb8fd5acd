package cmd

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/weaviate/hdf5"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
	"github.com/anskarl/swiftlearner/vector"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a projection of both splits to a file",
	Long: `Compose the train and test splits with the selected projection and write them as JSON lines
or as an HDF5 file with the datasets train, test, train_labels and test_labels`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "export"
		cfg.SeedSet = cmd.Flags().Changed("seed")

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		loader, registry := newLoader(&cfg)
		serveMetrics(cfg.MetricsAddr, registry)

		monitor := NewMemoryMonitor(&cfg, registry)
		monitor.Start()

		err := export(context.Background(), &cfg, loader)
		monitor.Stop()
		if err != nil {
			fatal(err)
		}

		if err := writeMetricsFile(cfg.MetricsFile, registry); err != nil {
			fatal(err)
		}

		if cfg.OutputFile != "" {
			infof("%s export successfully written to %q", cfg.OutputFormat, cfg.OutputFile)
		}
	},
}

func initExport() {
	rootCmd.AddCommand(exportCmd)
	addDatasetFlags(exportCmd.PersistentFlags())
	exportCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat,
		"format", "f", "", "Output format, one of [jsonl, hdf5] (default jsonl)")
	exportCmd.PersistentFlags().StringVarP(&globalConfig.OutputFile,
		"output", "o", "", "Filename for an output file. If none provided, jsonl is written to stdout")
}

func export(ctx context.Context, cfg *Config, loader *dataset.Loader) error {
	switch cfg.Projection {
	case "double":
		return runExport(ctx, cfg, loader, vector.Float64, hdf5.T_NATIVE_DOUBLE)
	case "binary":
		return runExport(ctx, cfg, loader, binaryInt64, hdf5.T_NATIVE_INT64)
	default:
		return runExport(ctx, cfg, loader, vector.Float32, hdf5.T_NATIVE_FLOAT)
	}
}

// binaryInt64 is vector.Binary with a fixed width element, so the vectors
// match the hdf5 element type on every platform.
func binaryInt64(r idx.Record) []int64 {
	bits := vector.Binary(r)
	out := make([]int64, len(bits))
	for i, b := range bits {
		out[i] = int64(b)
	}
	return out
}

func runExport[T any](ctx context.Context, cfg *Config, loader *dataset.Loader,
	p vector.Projector[T], dtype *hdf5.Datatype,
) error {
	compose := dataset.Compose[T]
	if cfg.Shuffle {
		compose = dataset.ComposeShuffled[T]
	}

	tt, err := compose(ctx, loader, p, cfg.datasetOptions())
	if err != nil {
		return err
	}

	sink, err := newSink[T](cfg, dtype)
	if err != nil {
		return err
	}

	for _, split := range []source.Split{source.Train, source.Test} {
		examples := tt.Train
		if split == source.Test {
			examples = tt.Test
		}

		if err := sink.WriteSplit(split, examples); err != nil {
			sink.Close()
			return err
		}

		log.WithFields(log.Fields{
			"split":      split,
			"examples":   len(examples),
			"projection": cfg.Projection,
			"shuffled":   cfg.Shuffle && split == source.Train,
		}).Info("Exported split")
	}

	return errors.Wrap(sink.Close(), "close export")
}

func newSink[T any](cfg *Config, dtype *hdf5.Datatype) (Sink[T], error) {
	if cfg.OutputFormat == "hdf5" {
		sink, err := NewHdf5Sink[T](cfg.OutputFile, dtype)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}

	var w io.WriteCloser = nopWriteCloser{os.Stdout}
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return nil, errors.Wrap(err, "create output file")
		}
		w = f
	}
	return NewJSONLSink[T](w), nil
}
