package sensor

import (
	"testing"
)

func TestConfigForChannelBytes(t *testing.T) {
	s := &ADS1115Source{pgaBits: 0x1} // ±4.096V

	// channel 0, sample rate 128 -> C3 83
	msb, lsb, err := s.configForChannel(0, 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xC3 || lsb != 0x83 {
		t.Fatalf("channel0@128 => got %02X %02X; want C3 83", msb, lsb)
	}

	// channel 1, sample rate 128 -> D3 83
	msb, lsb, err = s.configForChannel(1, 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xD3 || lsb != 0x83 {
		t.Fatalf("channel1@128 => got %02X %02X; want D3 83", msb, lsb)
	}

	// sample rate 8 for channel 0 -> C3 03 (dr=0)
	msb, lsb, err = s.configForChannel(0, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msb != 0xC3 || lsb != 0x03 {
		t.Fatalf("channel0@8 => got %02X %02X; want C3 03", msb, lsb)
	}

	// invalid channel
	_, _, err = s.configForChannel(9, 128)
	if err == nil {
		t.Fatalf("expected error for invalid channel")
	}
}

func TestConfigForChannel256mV(t *testing.T) {
	// the ±0.256V range used for the pyranometer millivolt signal
	s := &ADS1115Source{pgaBits: 0x5}
	msb, lsb, err := s.configForChannel(0, 860)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0x8000 | 0x4<<12 | 0x5<<9 | 0x100 | 0x7<<5 | 0x3 = 0xCBE3
	if msb != 0xCB || lsb != 0xE3 {
		t.Fatalf("channel0@860/256mV => got %02X %02X; want CB E3", msb, lsb)
	}
}

func TestPGABitsForFullScale(t *testing.T) {
	tests := []struct {
		mv   float64
		want byte
		ok   bool
	}{
		{6144, 0x0, true},
		{4096, 0x1, true},
		{256, 0x5, true},
		{123, 0, false},
	}
	for _, tt := range tests {
		got, err := pgaBitsForFullScale(tt.mv)
		if (err == nil) != tt.ok {
			t.Fatalf("pgaBitsForFullScale(%g) ok=%v err=%v", tt.mv, tt.ok, err)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("pgaBitsForFullScale(%g) = %#x; want %#x", tt.mv, got, tt.want)
		}
	}
}
