package sensor

import (
	"context"
	"math/rand"
	"sync"

	"github.com/garygsw/sensor-reader/pkg/calibrate"
	"github.com/garygsw/sensor-reader/pkg/config"
)

// FakeSource produces plausible raw codes for every configured channel, for
// running on hosts without the hardware attached.
type FakeSource struct {
	adcChannels []string
	rtdChannel  string
	mu          sync.Mutex
}

func NewFakeSource(cfg config.Config) *FakeSource {
	f := &FakeSource{}
	if cfg.ADC.Enabled {
		for _, ch := range cfg.ADC.Channels {
			if ch.Enabled {
				f.adcChannels = append(f.adcChannels, ch.Name)
			}
		}
	}
	if cfg.RTD.Enabled {
		f.rtdChannel = cfg.RTD.Name
	}
	return f
}

func (f *FakeSource) Name() string { return "simulation" }

func (f *FakeSource) Read(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ReadError{Source: f.Name(), Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Reading, 0, len(f.adcChannels)+1)
	for _, name := range f.adcChannels {
		// positive ADC code clear of the rails
		out = append(out, Reading{Channel: name, Raw: float64(rand.Intn(32000))})
	}
	if f.rtdChannel != "" {
		// a code inside the valid RTD domain, around ambient
		span := calibrate.RTDRawMax - calibrate.RTDRawMin
		out = append(out, Reading{Channel: f.rtdChannel, Raw: float64(calibrate.RTDRawMin + rand.Intn(span/8))})
	}
	return out, nil
}

func (f *FakeSource) Close() error { return nil }
