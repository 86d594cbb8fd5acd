package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
	"github.com/anskarl/swiftlearner/vector"
)

const numClasses = 10

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the decoded train and test splits",
	Long:  `Decode both splits and report header fields, record counts, the label histogram and pixel intensities`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "inspect"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		cfg.parseLabels()

		loader, registry := newLoader(&cfg)
		serveMetrics(cfg.MetricsAddr, registry)
		monitor := NewMemoryMonitor(&cfg, registry)
		monitor.Start()

		summary, err := inspect(context.Background(), loader, cfg.Samples)
		monitor.Stop()
		if err != nil {
			fatal(err)
		}
		summary.RunID = uuid.NewString()

		var w io.Writer
		if cfg.OutputFile == "" {
			w = os.Stdout
		} else {
			f, err := os.Create(cfg.OutputFile)
			if err != nil {
				fatal(err)
			}

			defer f.Close()
			w = f
		}

		if cfg.OutputFormat == "json" {
			_, err = summary.WriteJSONTo(w)
		} else {
			_, err = summary.WriteTextTo(w)
		}
		if err != nil {
			fatal(err)
		}

		if err := PushMetricsToPrometheus(&cfg, registry, summary); err != nil {
			log.WithError(err).Warn("Metrics were not pushed")
		}
		if err := PushSummaryToInfluxDB(&cfg, summary); err != nil {
			log.WithError(err).Warn("Summary was not written to InfluxDB")
		}
		if err := writeMetricsFile(cfg.MetricsFile, registry); err != nil {
			fatal(err)
		}

		if cfg.OutputFile != "" {
			infof("summary successfully written to %q", cfg.OutputFile)
		}
	},
}

func initInspect() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.PersistentFlags().IntVarP(&globalConfig.Samples,
		"samples", "n", idx.TrainSize, "Maximum number of examples per split")
	inspectCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat,
		"format", "f", "", "Output format, one of [text, json] (default text)")
	inspectCmd.PersistentFlags().StringVarP(&globalConfig.OutputFile,
		"output", "o", "", "Filename for an output file. If none provided, output to stdout only")
	inspectCmd.PersistentFlags().BoolVar(&globalConfig.InfluxDBConfig.Enabled,
		"influxdb", false, "Write the summary to InfluxDB")
	inspectCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.URL,
		"influxdbURL", "", "InfluxDB URL")
	inspectCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Token,
		"influxdbToken", "", "InfluxDB token")
	inspectCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Org,
		"influxdbOrg", "", "InfluxDB organization")
	inspectCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Bucket,
		"influxdbBucket", "", "InfluxDB bucket")
}

type SplitSummary struct {
	Split         string              `json:"split"`
	ImageHeader   idx.ImageHeader     `json:"imageHeader"`
	LabelHeader   idx.LabelHeader     `json:"labelHeader"`
	HeaderOK      bool                `json:"headerComplete"`
	Images        int                 `json:"images"`
	Labels        int                 `json:"labels"`
	Pairs         int                 `json:"pairs"`
	Histogram     [numClasses]int     `json:"histogram"`
	OutOfRange    int                 `json:"outOfRange"`
	MeanIntensity float64             `json:"meanIntensity"`
	ClassMeans    [numClasses]float64 `json:"classMeanIntensity"`
}

type Summary struct {
	RunID  string         `json:"run_id"`
	Splits []SplitSummary `json:"splits"`
}

func inspect(ctx context.Context, loader *dataset.Loader, samples int) (*Summary, error) {
	summary := &Summary{}

	for _, split := range []source.Split{source.Train, source.Test} {
		img, lbl, ok, err := loader.Headers(ctx, split)
		if err != nil {
			return nil, err
		}
		images, err := loader.Images(ctx, split)
		if err != nil {
			return nil, err
		}
		labels, err := loader.Labels(ctx, split)
		if err != nil {
			return nil, err
		}
		examples, err := dataset.Examples(ctx, loader, split, vector.Float64, samples)
		if err != nil {
			return nil, err
		}

		s := summarize(split.String(), examples)
		s.ImageHeader, s.LabelHeader, s.HeaderOK = img, lbl, ok
		s.Images = count(images)
		s.Labels = count(labels)

		log.WithFields(log.Fields{"split": s.Split, "images": s.Images, "labels": s.Labels,
			"pairs": s.Pairs}).Info("Inspected split")

		summary.Splits = append(summary.Splits, s)
	}

	return summary, nil
}

func count[T any](seq iter.Seq[T]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}

// summarize accumulates the label histogram and per class mean images of a
// paired split. Intensities are raw magnitudes averaged over all pixels.
func summarize(split string, examples iter.Seq[dataset.Example[float64]]) SplitSummary {
	s := SplitSummary{Split: split}

	var classSums [numClasses][]float64
	total := 0.0

	for e := range examples {
		s.Pairs++
		total += floats.Sum(e.Vector)

		if int(e.Label) >= numClasses {
			s.OutOfRange++
			continue
		}
		s.Histogram[e.Label]++
		if classSums[e.Label] == nil {
			classSums[e.Label] = make([]float64, len(e.Vector))
		}
		floats.Add(classSums[e.Label], e.Vector)
	}

	if s.Pairs > 0 {
		s.MeanIntensity = total / float64(s.Pairs*idx.ImageSize)
	}
	for c, sum := range classSums {
		if sum == nil {
			continue
		}
		floats.Scale(1/float64(s.Histogram[c]), sum)
		s.ClassMeans[c] = floats.Sum(sum) / float64(len(sum))
	}

	return s
}

func (s Summary) WriteTextTo(w io.Writer) (int64, error) {
	b := strings.Builder{}

	for _, split := range s.Splits {
		b.WriteString(fmt.Sprintf("Split: %s\n", split.Split))
		if split.HeaderOK {
			b.WriteString(fmt.Sprintf("Header: magic=%d count=%d rows=%d cols=%d, labels magic=%d count=%d\n",
				split.ImageHeader.Magic, split.ImageHeader.Count, split.ImageHeader.Rows, split.ImageHeader.Cols,
				split.LabelHeader.Magic, split.LabelHeader.Count))
		} else {
			b.WriteString("Header: truncated\n")
		}
		b.WriteString(fmt.Sprintf("Images: %d\nLabels: %d\nPairs: %d\nMean intensity: %f\n",
			split.Images, split.Labels, split.Pairs, split.MeanIntensity))
		for c, n := range split.Histogram {
			b.WriteString(fmt.Sprintf("  %d: %d (mean %f)\n", c, n, split.ClassMeans[c]))
		}
		if split.OutOfRange > 0 {
			b.WriteString(fmt.Sprintf("  out of range: %d\n", split.OutOfRange))
		}
	}

	n, err := w.Write([]byte(fmt.Sprintf("Run: %s\n%s", s.RunID, b.String())))
	return int64(n), err
}

func (s Summary) WriteJSONTo(w io.Writer) (int, error) {
	bytes, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return 0, err
	}

	return w.Write(bytes)
}
