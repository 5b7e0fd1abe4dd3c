package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type ADCChannelConfig struct {
	Channel           int     `json:"channel"`
	Name              string  `json:"name"`
	Enabled           bool    `json:"enabled"`
	CalibrationScale  float64 `json:"calibration_scale"`
	CalibrationOffset float64 `json:"calibration_offset"`
}

type ADCConfig struct {
	Enabled             bool               `json:"enabled"`
	I2CBus              string             `json:"i2c_bus"`
	I2CAddress          int                `json:"i2c_address"`
	SampleRate          int                `json:"sample_rate"`
	FullScaleMillivolts float64            `json:"full_scale_millivolts"`
	Channels            []ADCChannelConfig `json:"channels"`
}

type RTDConfig struct {
	Enabled   bool   `json:"enabled"`
	SPIDevice string `json:"spi_device"`
	Name      string `json:"name"`
	ThreeWire bool   `json:"three_wire"`
}

type ModbusRegisterConfig struct {
	Name    string `json:"name"`
	Address uint16 `json:"address"`
	Type    string `json:"type"` // uint16|int16|uint32|int64|float32
}

type ModbusConfig struct {
	Enabled   bool                   `json:"enabled"`
	Port      string                 `json:"port"`
	BaudRate  int                    `json:"baud_rate"`
	Parity    string                 `json:"parity"` // E, O or N
	SlaveID   byte                   `json:"slave_id"`
	Registers []ModbusRegisterConfig `json:"registers"`
}

type DerivedConfig struct {
	Name               string `json:"name"`
	Type               string `json:"type"` // only "irradiance" for now
	MillivoltsChannel  string `json:"millivolts_channel"`
	TemperatureChannel string `json:"temperature_channel"`
}

type MQTTConfig struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn"`
	Table      string `json:"table"`
	MaxRetries int    `json:"max_retries"`
	TimeoutMs  int    `json:"timeout_ms"`
}

type CSVConfig struct {
	Folder         string `json:"folder"`
	SensorName     string `json:"sensor_name"`
	SensorLocation string `json:"sensor_location"`
	Delimiter      string `json:"delimiter"`
}

type InfluxConfig struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	Org         string `json:"org"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement"`
	TimeoutMs   int    `json:"timeout_ms"`
}

type OutputConfig struct {
	Type string `json:"type"`
	// IntervalMs is the minimum time between publishes to this output.
	// Zero publishes every poll. Lets a slow uplink run at a longer
	// period than the local read interval.
	IntervalMs int             `json:"interval_ms,omitempty"`
	MQTT       *MQTTConfig     `json:"mqtt,omitempty"`
	Postgres   *PostgresConfig `json:"postgres,omitempty"`
	CSV        *CSVConfig      `json:"csv,omitempty"`
	Influx     *InfluxConfig   `json:"influx,omitempty"`
}

type Config struct {
	IntervalMs    int             `json:"interval_ms"`
	ReadTimeoutMs int             `json:"read_timeout_ms"`
	LogLevel      string          `json:"log_level"`
	SensorType    string          `json:"sensor_type"` // real|simulation
	ADC           ADCConfig       `json:"adc"`
	RTD           RTDConfig       `json:"rtd"`
	Modbus        ModbusConfig    `json:"modbus"`
	Derived       []DerivedConfig `json:"derived"`
	Outputs       []OutputConfig  `json:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		IntervalMs:    60000,
		ReadTimeoutMs: 3000,
		LogLevel:      "info",
		SensorType:    "real",
		ADC: ADCConfig{
			Enabled:             true,
			I2CBus:              "1",
			I2CAddress:          0x48,
			SampleRate:          860,
			FullScaleMillivolts: 256,
			Channels: []ADCChannelConfig{
				{Channel: 0, Name: "pv_millivolts", Enabled: true, CalibrationScale: 1.0},
			},
		},
		RTD: RTDConfig{
			Enabled:   true,
			SPIDevice: "/dev/spidev0.0",
			Name:      "rtd_temperature",
			ThreeWire: true,
		},
		Modbus: ModbusConfig{
			Enabled:  false,
			Port:     "/dev/ttyAMA0",
			BaudRate: 19200,
			Parity:   "E",
			SlaveID:  1,
		},
		Derived: []DerivedConfig{
			{
				Name:               "irradiance",
				Type:               "irradiance",
				MillivoltsChannel:  "pv_millivolts",
				TemperatureChannel: "rtd_temperature",
			},
		},
		Outputs: []OutputConfig{{Type: "console"}},
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and flags.
// Flags override values present in the JSON file.
func LoadFromFlags() (Config, error) {
	cfgPath := flag.String("config", "", "Path to JSON config file")
	flagInterval := flag.Int("interval-ms", -1, "Poll interval in ms")
	flagReadTimeout := flag.Int("read-timeout-ms", -1, "Per-source read timeout in ms")
	flagLogLevel := flag.String("log-level", "", "Log level: debug|info|warn|error")
	flagSensorType := flag.String("sensor-type", "", "sensor type: real|simulation")
	flagI2CBus := flag.String("i2c-bus", "", "ADC I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := flag.String("i2c-address", "", "ADC I2C address (decimal or 0x hex)")
	flagSampleRate := flag.Int("sample-rate", -1, "ADS1115 sample rate (SPS)")
	flagSPIDevice := flag.String("spi-device", "", "RTD SPI device (e.g., /dev/spidev0.0)")
	flagModbusPort := flag.String("modbus-port", "", "Modbus serial port")
	flagOutputs := flag.String("outputs", "", "Comma-separated outputs (console,csv,postgres,mqtt,influx)")
	flagOutputIntervals := flag.String("output-intervals", "", "Per-output publish intervals in ms (e.g., csv=60000,influx=300000)")
	flagPostgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	flagMQTTServer := flag.String("mqtt-server", "", "MQTT server (tcp://host:port)")

	flag.Parse()

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagReadTimeout != -1 {
		cfg.ReadTimeoutMs = *flagReadTimeout
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagI2CBus != "" {
		cfg.ADC.I2CBus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.ADC.I2CAddress = v
	}
	if *flagSampleRate != -1 {
		cfg.ADC.SampleRate = *flagSampleRate
	}
	if *flagSPIDevice != "" {
		cfg.RTD.SPIDevice = *flagSPIDevice
	}
	if *flagModbusPort != "" {
		cfg.Modbus.Port = *flagModbusPort
	}
	if *flagOutputs != "" {
		types := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(types))
		for _, t := range types {
			// keep any matching settings already present in the file config
			out := OutputConfig{Type: t}
			for _, prev := range cfg.Outputs {
				if prev.Type == t {
					out = prev
					break
				}
			}
			outs = append(outs, out)
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		intervals, err := parseOutputIntervals(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := intervals[strings.ToLower(cfg.Outputs[i].Type)]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if *flagPostgresDSN != "" {
		applied := false
		for i := range cfg.Outputs {
			if strings.EqualFold(cfg.Outputs[i].Type, "postgres") {
				if cfg.Outputs[i].Postgres == nil {
					cfg.Outputs[i].Postgres = &PostgresConfig{}
				}
				cfg.Outputs[i].Postgres.DSN = *flagPostgresDSN
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{
				Type:     "postgres",
				Postgres: &PostgresConfig{DSN: *flagPostgresDSN},
			})
		}
	}
	if *flagMQTTServer != "" {
		applied := false
		for i := range cfg.Outputs {
			if strings.EqualFold(cfg.Outputs[i].Type, "mqtt") {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				cfg.Outputs[i].MQTT.Server = *flagMQTTServer
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{
				Type: "mqtt",
				MQTT: &MQTTConfig{Server: *flagMQTTServer},
			})
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.ReadTimeoutMs <= 0 {
		return errors.New("read-timeout-ms must be > 0")
	}
	if c.ADC.Enabled && c.ADC.SampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	if c.ADC.Enabled && c.ADC.FullScaleMillivolts <= 0 {
		return errors.New("full_scale_millivolts must be > 0")
	}
	if c.Modbus.Enabled {
		if len(c.Modbus.Parity) != 1 || !strings.Contains("EON", c.Modbus.Parity) {
			return fmt.Errorf("invalid parity %q; enter either \"E\", \"O\" or \"N\"", c.Modbus.Parity)
		}
		if c.Modbus.BaudRate < 300 || c.Modbus.BaudRate > 100000 {
			return fmt.Errorf("invalid baudrate %d; enter possible values of 300-100000", c.Modbus.BaudRate)
		}
	}
	for _, o := range c.Outputs {
		if o.IntervalMs < 0 {
			return fmt.Errorf("output %q interval_ms must be >= 0", o.Type)
		}
	}
	known := map[string]bool{}
	for _, ch := range c.ADC.Channels {
		if ch.Enabled && ch.Name != "" {
			known[ch.Name] = true
		}
	}
	if c.RTD.Enabled {
		known[c.RTD.Name] = true
	}
	for _, d := range c.Derived {
		if d.Type != "irradiance" {
			return fmt.Errorf("unknown derived channel type %q", d.Type)
		}
		if !known[d.MillivoltsChannel] || !known[d.TemperatureChannel] {
			return fmt.Errorf("derived channel %q references unknown input channels", d.Name)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

// parseOutputIntervals parses "type=ms" pairs, e.g. "csv=60000,influx=300000".
func parseOutputIntervals(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, part := range parseCSV(s) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair %q", part)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid interval in %q", part)
		}
		out[strings.ToLower(strings.TrimSpace(kv[0]))] = v
	}
	return out, nil
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
