package output

import "github.com/garygsw/sensor-reader/pkg/sensor"

// Output publishes one poll's sample batch to a sink.
type Output interface {
	Publish([]sensor.Sample) error
	Close() error
}
