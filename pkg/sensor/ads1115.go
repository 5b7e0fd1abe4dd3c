package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/garygsw/sensor-reader/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// ADS1115Source reads single-ended conversions from an ADS1115 over I2C, one
// configured channel after another.
type ADS1115Source struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	channels   []config.ADCChannelConfig
	sampleRate int
	pgaBits    byte
}

func NewADS1115Source(cfg config.ADCConfig) (*ADS1115Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	pga, err := pgaBitsForFullScale(cfg.FullScaleMillivolts)
	if err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.I2CAddress), Bus: bus}
	enabled := make([]config.ADCChannelConfig, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.Enabled {
			enabled = append(enabled, ch)
		}
	}
	return &ADS1115Source{
		dev:        dev,
		bus:        bus,
		channels:   enabled,
		sampleRate: cfg.SampleRate,
		pgaBits:    pga,
	}, nil
}

func (s *ADS1115Source) Name() string { return "ads1115" }

func (s *ADS1115Source) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115Source) Read(ctx context.Context) ([]Reading, error) {
	out := make([]Reading, 0, len(s.channels))
	for _, ch := range s.channels {
		raw, err := s.readChannel(ctx, ch.Channel)
		if err != nil {
			return nil, &ReadError{Source: s.Name(), Err: err}
		}
		out = append(out, Reading{Channel: ch.Name, Raw: float64(raw)})
	}
	return out, nil
}

func (s *ADS1115Source) readChannel(ctx context.Context, channel int) (int16, error) {
	msb, lsb, err := s.configForChannel(channel, s.sampleRate)
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	// wait out the conversion
	delay := time.Duration(1000/s.sampleRate+2) * time.Millisecond
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(delay):
	}
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	return int16(readBuf[0])<<8 | int16(readBuf[1]), nil
}

// pgaBitsForFullScale maps a programmable-gain full-scale range in millivolts
// to the ADS1115 PGA config bits.
func pgaBitsForFullScale(mv float64) (byte, error) {
	switch mv {
	case 6144:
		return 0x0, nil
	case 4096:
		return 0x1, nil
	case 2048:
		return 0x2, nil
	case 1024:
		return 0x3, nil
	case 512:
		return 0x4, nil
	case 256:
		return 0x5, nil
	default:
		return 0, fmt.Errorf("unsupported full-scale range %gmV", mv)
	}
}

func (s *ADS1115Source) configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var cfg uint16 = 0x8000 // OS = 1 (start single conversion)
	cfg |= uint16(mux) << 12
	cfg |= uint16(s.pgaBits) << 9
	cfg |= 1 << 8 // single-shot mode
	cfg |= uint16(dr) << 5
	// comparator disabled (bits 1:0 = 11)
	cfg |= 0x3
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
