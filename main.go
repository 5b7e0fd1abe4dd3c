package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garygsw/sensor-reader/pkg/calibrate"
	"github.com/garygsw/sensor-reader/pkg/clock"
	"github.com/garygsw/sensor-reader/pkg/collector"
	"github.com/garygsw/sensor-reader/pkg/config"
	"github.com/garygsw/sensor-reader/pkg/logger"
	"github.com/garygsw/sensor-reader/pkg/output"
	"github.com/garygsw/sensor-reader/pkg/output/console"
	"github.com/garygsw/sensor-reader/pkg/output/csvfile"
	"github.com/garygsw/sensor-reader/pkg/output/influx"
	"github.com/garygsw/sensor-reader/pkg/output/mqtt"
	"github.com/garygsw/sensor-reader/pkg/output/postgres"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error loading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	// the clock is anchored before anything slow happens
	clk := clock.New()

	sources, err := buildSources(cfg)
	if err != nil {
		// hardware bus initialization is the one unrecoverable failure
		log.Fatalw("sensor initialization failed", "err", err)
	}
	defer closeSources(sources, log)

	outputs, err := buildOutputs(cfg)
	if err != nil {
		log.Fatalw("output initialization failed", "err", err)
	}
	defer closeOutputs(outputs, log)

	coll := collector.New(
		sources,
		buildDerived(cfg),
		outputs,
		clk,
		log,
		time.Duration(cfg.IntervalMs)*time.Millisecond,
		time.Duration(cfg.ReadTimeoutMs)*time.Millisecond,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coll.Run(ctx)
		close(done)
	}()

	waitForShutdown(cancel, done, log)
}

// buildSources constructs the hardware (or simulated) sources together with
// each channel's calibration function.
func buildSources(cfg config.Config) ([]collector.SourceEntry, error) {
	if cfg.SensorType == "simulation" {
		convert := adcConverters(cfg.ADC)
		if cfg.RTD.Enabled {
			convert[cfg.RTD.Name] = calibrate.RTDTemperature
		}
		return []collector.SourceEntry{
			{Source: sensor.NewFakeSource(cfg), Convert: convert},
		}, nil
	}

	var entries []collector.SourceEntry
	if cfg.ADC.Enabled {
		src, err := sensor.NewADS1115Source(cfg.ADC)
		if err != nil {
			return nil, fmt.Errorf("ads1115: %w", err)
		}
		entries = append(entries, collector.SourceEntry{Source: src, Convert: adcConverters(cfg.ADC)})
	}
	if cfg.RTD.Enabled {
		src, err := sensor.NewMAX31865Source(cfg.RTD)
		if err != nil {
			return nil, fmt.Errorf("max31865: %w", err)
		}
		entries = append(entries, collector.SourceEntry{
			Source:  src,
			Convert: map[string]calibrate.Func{cfg.RTD.Name: calibrate.RTDTemperature},
		})
	}
	if cfg.Modbus.Enabled {
		src, err := sensor.NewModbusSource(cfg.Modbus, time.Duration(cfg.ReadTimeoutMs)*time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("modbus: %w", err)
		}
		convert := make(map[string]calibrate.Func, len(cfg.Modbus.Registers))
		for _, reg := range cfg.Modbus.Registers {
			// register values arrive already in engineering units
			convert[reg.Name] = calibrate.Linear(1, 0)
		}
		entries = append(entries, collector.SourceEntry{Source: src, Convert: convert})
	}
	return entries, nil
}

// adcConverters maps every enabled ADC channel to its millivolt conversion.
func adcConverters(cfg config.ADCConfig) map[string]calibrate.Func {
	convert := make(map[string]calibrate.Func)
	if !cfg.Enabled {
		return convert
	}
	for _, ch := range cfg.Channels {
		if !ch.Enabled || ch.Name == "" {
			continue
		}
		scale := ch.CalibrationScale
		if scale == 0 {
			scale = 1
		}
		convert[ch.Name] = calibrate.ADCMillivolts(cfg.FullScaleMillivolts, scale, ch.CalibrationOffset)
	}
	return convert
}

func buildDerived(cfg config.Config) []collector.Derived {
	out := make([]collector.Derived, 0, len(cfg.Derived))
	for _, d := range cfg.Derived {
		out = append(out, collector.NewIrradianceDerived(d.Name, d.MillivoltsChannel, d.TemperatureChannel))
	}
	return out
}

func buildOutputs(cfg config.Config) ([]collector.OutputEntry, error) {
	entries := make([]collector.OutputEntry, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		var (
			o   output.Output
			err error
		)
		switch oc.Type {
		case "console":
			o = console.NewConsole()
		case "csv":
			csvCfg := config.CSVConfig{}
			if oc.CSV != nil {
				csvCfg = *oc.CSV
			}
			o, err = csvfile.NewCSV(csvCfg, configuredChannels(cfg))
			if err != nil {
				return nil, fmt.Errorf("csv output: %w", err)
			}
		case "postgres":
			if oc.Postgres == nil || oc.Postgres.DSN == "" {
				return nil, fmt.Errorf("postgres output needs a dsn")
			}
			o, err = postgres.Open(*oc.Postgres)
			if err != nil {
				return nil, fmt.Errorf("postgres output: %w", err)
			}
		case "mqtt":
			mqttCfg := config.MQTTConfig{}
			if oc.MQTT != nil {
				mqttCfg = *oc.MQTT
			}
			o, err = mqtt.NewMQTT(mqttCfg)
			if err != nil {
				return nil, fmt.Errorf("mqtt output: %w", err)
			}
		case "influx":
			if oc.Influx == nil {
				return nil, fmt.Errorf("influx output needs settings")
			}
			o, err = influx.NewInflux(*oc.Influx)
			if err != nil {
				return nil, fmt.Errorf("influx output: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
		entries = append(entries, collector.OutputEntry{
			Output:   o,
			Interval: time.Duration(oc.IntervalMs) * time.Millisecond,
		})
	}
	return entries, nil
}

// configuredChannels lists every channel the configuration can produce, in
// the order a CSV header should carry them: ADC channels, RTD, Modbus
// registers, then derived channels.
func configuredChannels(cfg config.Config) []string {
	var names []string
	if cfg.ADC.Enabled {
		for _, ch := range cfg.ADC.Channels {
			if ch.Enabled && ch.Name != "" {
				names = append(names, ch.Name)
			}
		}
	}
	if cfg.RTD.Enabled && cfg.RTD.Name != "" {
		names = append(names, cfg.RTD.Name)
	}
	if cfg.Modbus.Enabled {
		for _, reg := range cfg.Modbus.Registers {
			if reg.Name != "" {
				names = append(names, reg.Name)
			}
		}
	}
	for _, d := range cfg.Derived {
		names = append(names, d.Name)
	}
	return names
}

func closeSources(entries []collector.SourceEntry, log *logger.Logger) {
	for _, e := range entries {
		if err := e.Source.Close(); err != nil {
			log.Errorw("error closing source", "source", e.Source.Name(), "err", err)
		}
	}
}

func closeOutputs(entries []collector.OutputEntry, log *logger.Logger) {
	for _, e := range entries {
		if err := e.Output.Close(); err != nil {
			log.Errorw("error closing output", "err", err)
		}
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops the collector and
// waits for the loop to drain.
func waitForShutdown(cancel context.CancelFunc, done <-chan struct{}, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warnw("collector did not stop in time")
	}
}
