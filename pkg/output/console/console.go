package console

import (
	"fmt"
	"time"

	"github.com/garygsw/sensor-reader/pkg/output"
	"github.com/garygsw/sensor-reader/pkg/sensor"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(samples []sensor.Sample) error {
	for _, s := range samples {
		line := fmt.Sprintf("%s channel=%s raw=%g value=%.6f", s.Timestamp.Format(time.RFC3339), s.Channel, s.Raw, s.Value)
		if s.ClockAdjusted {
			line += " clock_adjusted=true"
		}
		fmt.Println(line)
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
