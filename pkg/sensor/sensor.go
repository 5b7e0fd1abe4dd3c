package sensor

import (
	"context"
	"fmt"
	"time"
)

// Reading is a single raw value from one named channel. Conversion to
// physical units happens later, in the collector.
type Reading struct {
	Channel string  `json:"channel"`
	Raw     float64 `json:"raw"`
}

// Sample is one converted reading, stamped with the batch timestamp.
// ClockAdjusted marks samples whose timestamp was corrected after a wall
// clock regression.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	Channel       string    `json:"channel"`
	Raw           float64   `json:"raw"`
	Value         float64   `json:"value"`
	ClockAdjusted bool      `json:"clock_adjusted,omitempty"`
}

// Source is one physical device contributing raw channel readings.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]Reading, error)
	Close() error
}

// ReadError reports a failed hardware read on one source. The collector logs
// it and skips the source's channels for the tick.
type ReadError struct {
	Source string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Source, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
