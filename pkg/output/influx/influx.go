// Package influx mirrors each sample batch into an InfluxDB 2.x bucket, one
// point per sample. Best effort: the postgres sink is the system of record.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/garygsw/sensor-reader/pkg/config"
	"github.com/garygsw/sensor-reader/pkg/output"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

const (
	defaultMeasurement = "sample"
	defaultTimeout     = 5 * time.Second
)

type InfluxOutput struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	timeout     time.Duration
}

func NewInflux(cfg config.InfluxConfig) (output.Output, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx output needs url, org and bucket")
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = defaultMeasurement
	}
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxOutput{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		timeout:     timeout,
	}, nil
}

// Publish writes the batch under one deadline; a stalled server cannot hold
// the poll loop past the timeout.
func (o *InfluxOutput) Publish(samples []sensor.Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	for _, s := range samples {
		p := influxdb2.NewPoint(
			o.measurement,
			map[string]string{
				"channel":        s.Channel,
				"clock_adjusted": strconv.FormatBool(s.ClockAdjusted),
			},
			map[string]interface{}{
				"raw":   s.Raw,
				"value": s.Value,
			},
			s.Timestamp,
		)
		if err := o.writeAPI.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("influx write %s: %w", s.Channel, err)
		}
	}
	return nil
}

func (o *InfluxOutput) Close() error {
	o.client.Close()
	return nil
}
