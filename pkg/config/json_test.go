package config

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalConfigJSON(t *testing.T) {
	js := `{
        "interval_ms": 60000,
        "read_timeout_ms": 3000,
        "log_level": "debug",
        "sensor_type": "real",
        "adc": {
            "enabled": true,
            "i2c_bus": "1",
            "i2c_address": 72,
            "sample_rate": 860,
            "full_scale_millivolts": 256,
            "channels": [
                {"channel": 0, "name": "pv_millivolts", "enabled": true, "calibration_scale": 1.0, "calibration_offset": 0.12},
                {"channel": 1, "name": "spare", "enabled": false, "calibration_scale": 0.98, "calibration_offset": -0.05}
            ]
        },
        "rtd": {"enabled": true, "spi_device": "/dev/spidev0.0", "name": "rtd_temperature", "three_wire": true},
        "modbus": {"enabled": true, "port": "/dev/ttyAMA0", "baud_rate": 19200, "parity": "E", "slave_id": 1,
            "registers": [{"name": "real_power", "address": 3053, "type": "float32"}]},
        "derived": [{"name": "irradiance", "type": "irradiance",
            "millivolts_channel": "pv_millivolts", "temperature_channel": "rtd_temperature"}],
        "outputs": [
            {"type": "console"},
            {"type": "postgres", "interval_ms": 300000, "postgres": {"dsn": "postgres://u:p@h/db", "table": "samples", "max_retries": 5}}
        ]
    }`

	var cfg Config
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.ADC.I2CAddress != 72 {
		t.Fatalf("i2c address: got %d", cfg.ADC.I2CAddress)
	}
	if cfg.ADC.SampleRate != 860 {
		t.Fatalf("sample_rate: got %d", cfg.ADC.SampleRate)
	}
	if len(cfg.ADC.Channels) != 2 {
		t.Fatalf("channels len: %d", len(cfg.ADC.Channels))
	}
	if cfg.ADC.Channels[0].Name != "pv_millivolts" || !cfg.ADC.Channels[0].Enabled || cfg.ADC.Channels[0].CalibrationOffset != 0.12 {
		t.Fatalf("channel0 incorrect: %+v", cfg.ADC.Channels[0])
	}
	if cfg.ADC.Channels[1].Enabled || cfg.ADC.Channels[1].CalibrationScale != 0.98 {
		t.Fatalf("channel1 incorrect: %+v", cfg.ADC.Channels[1])
	}
	if !cfg.RTD.Enabled || cfg.RTD.SPIDevice != "/dev/spidev0.0" {
		t.Fatalf("rtd incorrect: %+v", cfg.RTD)
	}
	if !cfg.Modbus.Enabled || len(cfg.Modbus.Registers) != 1 || cfg.Modbus.Registers[0].Address != 3053 {
		t.Fatalf("modbus incorrect: %+v", cfg.Modbus)
	}
	if len(cfg.Derived) != 1 || cfg.Derived[0].TemperatureChannel != "rtd_temperature" {
		t.Fatalf("derived incorrect: %+v", cfg.Derived)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[1].Postgres == nil || cfg.Outputs[1].Postgres.Table != "samples" {
		t.Fatalf("outputs incorrect: %+v", cfg.Outputs)
	}
	if cfg.Outputs[0].IntervalMs != 0 || cfg.Outputs[1].IntervalMs != 300000 {
		t.Fatalf("output intervals incorrect: %+v", cfg.Outputs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
