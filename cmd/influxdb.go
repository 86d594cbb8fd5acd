package cmd

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	log "github.com/sirupsen/logrus"
)

// InfluxDBConfig holds configuration for InfluxDB metrics reporting
type InfluxDBConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

// PushSummaryToInfluxDB writes one point per split of an inspect summary
func PushSummaryToInfluxDB(cfg *Config, summary *Summary) error {
	if !cfg.InfluxDBConfig.Enabled || cfg.InfluxDBConfig.URL == "" {
		return nil
	}

	client := influxdb2.NewClient(cfg.InfluxDBConfig.URL, cfg.InfluxDBConfig.Token)
	defer client.Close()

	writeAPI := client.WriteAPIBlocking(cfg.InfluxDBConfig.Org, cfg.InfluxDBConfig.Bucket)

	now := time.Now()
	for _, s := range summary.Splits {
		p := influxdb2.NewPointWithMeasurement("mnist_inspect").
			AddTag("split", s.Split).
			AddTag("run_id", summary.RunID).
			AddField("images", s.Images).
			AddField("labels", s.Labels).
			AddField("pairs", s.Pairs).
			AddField("out_of_range", s.OutOfRange).
			AddField("mean_intensity", s.MeanIntensity).
			SetTime(now)
		for key, value := range cfg.LabelMap {
			p.AddTag(key, value)
		}
		for c, n := range s.Histogram {
			p.AddField(fmt.Sprintf("class_%d", c), n)
		}

		if err := writeAPI.WritePoint(context.Background(), p); err != nil {
			log.WithError(err).Error("Failed to push summary to InfluxDB")
			return err
		}
	}

	log.WithFields(log.Fields{
		"url":    cfg.InfluxDBConfig.URL,
		"bucket": cfg.InfluxDBConfig.Bucket,
		"run_id": summary.RunID,
	}).Info("Successfully pushed summary to InfluxDB")

	return nil
}
