package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	weaviategrpc "github.com/weaviate/weaviate/grpc/generated/protocol/v1"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
	"github.com/anskarl/swiftlearner/vector"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import one split into a Weaviate class",
	Long: `Recreate a Weaviate class and stream the projected examples of a split into it over gRPC.
Object ids are derived from the position of the example, its label is stored as a property`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "import"
		cfg.SeedSet = cmd.Flags().Changed("seed")

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		ctx := context.Background()
		loader, registry := newLoader(&cfg)
		serveMetrics(cfg.MetricsAddr, registry)

		client, err := createClient(&cfg)
		if err != nil {
			fatal(err)
		}
		if err := createSchema(ctx, &cfg, client); err != nil {
			fatal(err)
		}

		monitor := NewMemoryMonitor(&cfg, registry)
		monitor.Start()

		startTime := time.Now()
		n, err := importSplit(ctx, &cfg, loader)
		monitor.Stop()
		if err != nil {
			fatal(err)
		}

		log.WithFields(log.Fields{"examples": n, "class": cfg.ClassName, "split": cfg.Split,
			"duration": time.Since(startTime)}).Info("Total import time")

		if err := writeMetricsFile(cfg.MetricsFile, registry); err != nil {
			fatal(err)
		}
	},
}

func initImport() {
	rootCmd.AddCommand(importCmd)
	addDatasetFlags(importCmd.PersistentFlags())
	importCmd.PersistentFlags().StringVarP(&globalConfig.Split,
		"split", "s", "train", "Split to import, one of [train, test]")
	importCmd.PersistentFlags().StringVarP(&globalConfig.ClassName,
		"className", "c", "Digit", "Class name to import into")
	importCmd.PersistentFlags().StringVar(&globalConfig.DistanceMetric,
		"distance", "l2-squared", "Distance metric of the vector index")
	importCmd.PersistentFlags().IntVarP(&globalConfig.BatchSize,
		"batchSize", "b", 1000, "Batch size for insert operations")
	importCmd.PersistentFlags().IntVar(&globalConfig.Parallel,
		"parallel", 8, "Number of parallel import workers")
	importCmd.PersistentFlags().StringVarP(&globalConfig.Origin,
		"grpcOrigin", "u", "localhost:50051", "The gRPC origin that Weaviate is running at")
	importCmd.PersistentFlags().StringVar(&globalConfig.HttpOrigin,
		"httpOrigin", "localhost:8080", "The http origin for Weaviate (without http scheme)")
	importCmd.PersistentFlags().StringVar(&globalConfig.HttpScheme,
		"httpScheme", "http", "The http scheme (http or https)")
}

func importSplit(ctx context.Context, cfg *Config, loader *dataset.Loader) (int, error) {
	switch cfg.Projection {
	case "double":
		return importExamples(ctx, cfg, loader, vector.Float64)
	case "binary":
		return importExamples(ctx, cfg, loader, vector.Binary)
	default:
		return importExamples(ctx, cfg, loader, vector.Float32)
	}
}

// importExamples composes both splits so the shuffle and the sample bound
// apply exactly as they do for exports, then imports the configured one.
func importExamples[T constraints.Integer | constraints.Float](ctx context.Context, cfg *Config,
	loader *dataset.Loader, p vector.Projector[T],
) (int, error) {
	compose := dataset.Compose[T]
	if cfg.Shuffle {
		compose = dataset.ComposeShuffled[T]
	}

	tt, err := compose(ctx, loader, p, cfg.datasetOptions())
	if err != nil {
		return 0, err
	}

	examples := tt.Train
	if split, _ := parseSplit(cfg.Split); split == source.Test {
		examples = tt.Test
	}

	return len(examples), loadExamples(ctx, cfg, examples)
}

// Cuts examples into batches on one goroutine while cfg.Parallel workers
// write them to Weaviate. The first failing worker cancels the others.
func loadExamples[T constraints.Integer | constraints.Float](ctx context.Context, cfg *Config,
	examples []dataset.Example[T],
) error {
	g, ctx := errgroup.WithContext(ctx)
	chunks := make(chan Batch, 10)

	g.Go(func() error {
		defer close(chunks)
		return streamBatches(ctx, examples, cfg.BatchSize, chunks)
	})

	for i := 0; i < cfg.Parallel; i++ {
		g.Go(func() error {
			grpcConn, err := dialGrpc(ctx, cfg)
			if err != nil {
				return err
			}
			defer grpcConn.Close()
			grpcClient := weaviategrpc.NewWeaviateClient(grpcConn)

			for chunk := range chunks {
				if err := writeChunk(ctx, &chunk, grpcClient, cfg); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return errors.Wrap(g.Wait(), "import")
}

func streamBatches[T constraints.Integer | constraints.Float](ctx context.Context,
	examples []dataset.Example[T], batchSize int, chunks chan<- Batch,
) error {
	for offset := 0; offset < len(examples); offset += batchSize {
		end := min(offset+batchSize, len(examples))

		batch := Batch{
			Vectors: make([][]float32, 0, end-offset),
			Labels:  make([]idx.Label, 0, end-offset),
			Offset:  offset,
		}
		for _, e := range examples[offset:end] {
			batch.Vectors = append(batch.Vectors, vector.ToFloat32(e.Vector))
			batch.Labels = append(batch.Labels, e.Label)
		}

		if end%10000 == 0 {
			log.Printf("Queued %d/%d rows", end, len(examples))
		}

		select {
		case chunks <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
