// Package collector runs the poll-convert-publish pipeline: on every tick it
// reads all configured sources, applies each channel's calibration, computes
// derived channels and hands the batch to every due output.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garygsw/sensor-reader/pkg/calibrate"
	"github.com/garygsw/sensor-reader/pkg/logger"
	"github.com/garygsw/sensor-reader/pkg/output"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

// Clock issues batch timestamps, reporting whether the wall clock had to be
// corrected against the monotonic reference.
type Clock interface {
	Now() (ts time.Time, adjusted bool)
}

// SourceEntry pairs a hardware source with the calibration function of each
// of its channels.
type SourceEntry struct {
	Source  sensor.Source
	Convert map[string]calibrate.Func
}

// Derived is a channel computed from other channels' converted values.
// Compute returns the principal raw input alongside the derived value.
type Derived struct {
	Name    string
	Compute func(values map[string]float64) (raw, value float64, err error)
}

// NewIrradianceDerived builds the irradiance channel from a photodiode
// millivolt channel and a cell temperature channel.
func NewIrradianceDerived(name, millivoltsChannel, temperatureChannel string) Derived {
	return Derived{
		Name: name,
		Compute: func(values map[string]float64) (float64, float64, error) {
			mv, ok := values[millivoltsChannel]
			if !ok {
				return 0, 0, fmt.Errorf("input channel %q missing this tick", millivoltsChannel)
			}
			tempC, ok := values[temperatureChannel]
			if !ok {
				return 0, 0, fmt.Errorf("input channel %q missing this tick", temperatureChannel)
			}
			irr, err := calibrate.Irradiance(mv, tempC)
			if err != nil {
				return 0, 0, err
			}
			return mv, irr, nil
		},
	}
}

// OutputEntry pairs an output with its publish interval. A zero interval
// publishes every poll; a longer one lets a slow uplink lag the local read
// rate, receiving only the latest batch once its interval has elapsed.
type OutputEntry struct {
	Output   output.Output
	Interval time.Duration
}

type outputState struct {
	OutputEntry
	last time.Time
}

type Collector struct {
	sources     []SourceEntry
	derived     []Derived
	outputs     []outputState
	clk         Clock
	log         *logger.Logger
	readTimeout time.Duration
	interval    time.Duration
}

func New(sources []SourceEntry, derived []Derived, outputs []OutputEntry,
	clk Clock, log *logger.Logger, interval, readTimeout time.Duration) *Collector {
	states := make([]outputState, len(outputs))
	for i, o := range outputs {
		states[i] = outputState{OutputEntry: o}
	}
	return &Collector{
		sources:     sources,
		derived:     derived,
		outputs:     states,
		clk:         clk,
		log:         log,
		readTimeout: readTimeout,
		interval:    interval,
	}
}

// PollOnce reads every configured channel once. All samples of the batch
// share the single timestamp captured at poll start. Channels whose read or
// conversion fails are logged and omitted; no value is ever substituted.
func (c *Collector) PollOnce(ctx context.Context) []sensor.Sample {
	ts, adjusted := c.clk.Now()
	if adjusted {
		c.log.Warnw("wall clock regressed past process start; timestamp corrected from monotonic reference", "timestamp", ts)
	}

	samples := make([]sensor.Sample, 0, 8)
	values := make(map[string]float64)
	for _, e := range c.sources {
		rctx, cancel := context.WithTimeout(ctx, c.readTimeout)
		readings, err := e.Source.Read(rctx)
		cancel()
		if err != nil {
			c.log.Errorw("sensor read failed; skipping source for this tick", "source", e.Source.Name(), "err", err)
			continue
		}
		for _, r := range readings {
			conv, ok := e.Convert[r.Channel]
			if !ok {
				c.log.Errorw("no calibration for channel; omitting", "channel", r.Channel)
				continue
			}
			value, err := conv(r.Raw)
			if err != nil {
				if calibrate.IsRangeError(err) {
					c.log.Warnw("raw value outside valid domain; omitting channel", "channel", r.Channel, "raw", r.Raw, "err", err)
				} else {
					c.log.Errorw("calibration failed; omitting channel", "channel", r.Channel, "raw", r.Raw, "err", err)
				}
				continue
			}
			samples = append(samples, sensor.Sample{
				Timestamp:     ts,
				Channel:       r.Channel,
				Raw:           r.Raw,
				Value:         value,
				ClockAdjusted: adjusted,
			})
			values[r.Channel] = value
		}
	}

	for _, d := range c.derived {
		raw, value, err := d.Compute(values)
		if err != nil {
			if calibrate.IsRangeError(err) {
				c.log.Warnw("derived value outside valid domain; omitting channel", "channel", d.Name, "err", err)
			} else {
				c.log.Warnw("derived channel unavailable this tick", "channel", d.Name, "err", err)
			}
			continue
		}
		samples = append(samples, sensor.Sample{
			Timestamp:     ts,
			Channel:       d.Name,
			Raw:           raw,
			Value:         value,
			ClockAdjusted: adjusted,
		})
	}
	return samples
}

// publish hands the batch to every output whose interval has elapsed.
// Failures are logged and never stop the loop; each sink owns its own
// retry policy. time.Since is monotonic, so a wall-clock step cannot
// stall or flood a sink.
func (c *Collector) publish(samples []sensor.Sample) {
	for i := range c.outputs {
		o := &c.outputs[i]
		if o.Interval > 0 && !o.last.IsZero() && time.Since(o.last) < o.Interval {
			continue
		}
		o.last = time.Now()
		if err := o.Output.Publish(samples); err != nil {
			c.log.Errorw("output publish failed", "err", err)
		}
	}
}

// Run polls on the configured interval until the context is cancelled.
func (c *Collector) Run(ctx context.Context) {
	c.log.Infow("data collection started", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				c.log.Warnw("data collection ended", "err", ctx.Err())
			} else {
				c.log.Infow("data collection ended")
			}
			return
		case <-ticker.C:
			samples := c.PollOnce(ctx)
			if len(samples) == 0 {
				c.log.Warnw("no samples this tick")
				continue
			}
			c.publish(samples)
		}
	}
}
