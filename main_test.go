package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/garygsw/sensor-reader/pkg/config"
)

func TestADCConverters(t *testing.T) {
	cfg := config.ADCConfig{
		Enabled:             true,
		FullScaleMillivolts: 256,
		Channels: []config.ADCChannelConfig{
			{Channel: 0, Name: "pv_millivolts", Enabled: true, CalibrationScale: 1.0},
			{Channel: 1, Name: "disabled", Enabled: false},
			{Channel: 2, Name: "", Enabled: true},
		},
	}
	convert := adcConverters(cfg)
	if len(convert) != 1 {
		t.Fatalf("converters: got %d, want 1", len(convert))
	}
	conv, ok := convert["pv_millivolts"]
	if !ok {
		t.Fatalf("missing converter for pv_millivolts")
	}
	got, err := conv(16384)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != 128 {
		t.Fatalf("half-scale: got %g mV, want 128", got)
	}
}

func TestADCConvertersZeroScaleDefaultsToOne(t *testing.T) {
	cfg := config.ADCConfig{
		Enabled:             true,
		FullScaleMillivolts: 1024,
		Channels:            []config.ADCChannelConfig{{Channel: 0, Name: "ch", Enabled: true}},
	}
	conv := adcConverters(cfg)["ch"]
	got, err := conv(16384)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != 512 {
		t.Fatalf("got %g, want 512", got)
	}
}

func TestBuildDerived(t *testing.T) {
	cfg := config.DefaultConfig()
	derived := buildDerived(cfg)
	if len(derived) != 1 {
		t.Fatalf("derived: got %d, want 1", len(derived))
	}
	if derived[0].Name != "irradiance" {
		t.Fatalf("derived name: got %q", derived[0].Name)
	}
	// the default config wires irradiance from pv millivolts + rtd temperature
	raw, value, err := derived[0].Compute(map[string]float64{
		"pv_millivolts":   54.57,
		"rtd_temperature": 25,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if raw != 54.57 {
		t.Fatalf("raw: got %g, want 54.57", raw)
	}
	if value < 999.9 || value > 1000.1 {
		t.Fatalf("value: got %g, want ~1000", value)
	}
}

func TestBuildOutputsConsoleOnly(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}}}
	outs, err := buildOutputs(cfg)
	if err != nil {
		t.Fatalf("buildOutputs: %v", err)
	}
	if len(outs) != 1 || outs[0].Output == nil {
		t.Fatalf("outputs: got %+v, want one console entry", outs)
	}
	if outs[0].Interval != 0 {
		t.Fatalf("console interval: got %v, want 0", outs[0].Interval)
	}
}

func TestBuildOutputsCarriesInterval(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console", IntervalMs: 300000}}}
	outs, err := buildOutputs(cfg)
	if err != nil {
		t.Fatalf("buildOutputs: %v", err)
	}
	if outs[0].Interval != 5*time.Minute {
		t.Fatalf("interval: got %v, want 5m", outs[0].Interval)
	}
}

func TestConfiguredChannels(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Modbus.Enabled = true
	cfg.Modbus.Registers = []config.ModbusRegisterConfig{{Name: "real_power", Address: 3053, Type: "float32"}}
	got := configuredChannels(cfg)
	want := []string{"pv_millivolts", "rtd_temperature", "real_power", "irradiance"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("channels: got %v, want %v", got, want)
	}
}

func TestBuildOutputsRejectsUnknownType(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "dropbox"}}}
	if _, err := buildOutputs(cfg); err == nil {
		t.Fatalf("expected error for unknown output type")
	}
}

func TestBuildOutputsPostgresNeedsDSN(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "postgres"}}}
	if _, err := buildOutputs(cfg); err == nil {
		t.Fatalf("expected error for postgres output without dsn")
	}
}

func TestBuildSourcesSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = "simulation"
	entries, err := buildSources(cfg)
	if err != nil {
		t.Fatalf("buildSources: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	if entries[0].Source.Name() != "simulation" {
		t.Fatalf("source name: got %q", entries[0].Source.Name())
	}
	if _, ok := entries[0].Convert["rtd_temperature"]; !ok {
		t.Fatalf("missing rtd converter in simulation entry")
	}
	if _, ok := entries[0].Convert["pv_millivolts"]; !ok {
		t.Fatalf("missing adc converter in simulation entry")
	}
}
