package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/garygsw/sensor-reader/pkg/sensor"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	c := NewConsole()
	ts := time.Date(2026, 8, 28, 14, 41, 54, 0, time.UTC)
	samples := []sensor.Sample{{Timestamp: ts, Channel: "rtd_temperature", Raw: 9000, Value: 24.5}}
	out := captureStdout(func() { _ = c.Publish(samples) })
	want := "2026-08-28T14:41:54Z channel=rtd_temperature raw=9000 value=24.500000\n"
	if out != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", out, want)
	}
}

func TestConsolePublishFlagged(t *testing.T) {
	c := NewConsole()
	ts := time.Date(2026, 8, 28, 14, 41, 54, 0, time.UTC)
	samples := []sensor.Sample{{Timestamp: ts, Channel: "irradiance", Raw: 41, Value: 751.2, ClockAdjusted: true}}
	out := captureStdout(func() { _ = c.Publish(samples) })
	want := "2026-08-28T14:41:54Z channel=irradiance raw=41 value=751.200000 clock_adjusted=true\n"
	if out != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", out, want)
	}
}
