package sensor

import (
	"math"
	"testing"
)

func TestDecodeRegisters(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		dataType string
		want     float64
	}{
		{"uint16", []byte{0x01, 0x00}, "uint16", 256},
		{"int16 negative", []byte{0xFF, 0xFF}, "int16", -1},
		{"uint32", []byte{0x00, 0x01, 0x00, 0x00}, "uint32", 65536},
		{"int64 negative", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE}, "int64", -2},
		{"float32", []byte{0x42, 0x28, 0x00, 0x00}, "float32", 42.0},
	}
	for _, tt := range tests {
		got, err := decodeRegisters(tt.data, tt.dataType)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("%s: got %g, want %g", tt.name, got, tt.want)
		}
	}
}

func TestDecodeRegistersErrors(t *testing.T) {
	if _, err := decodeRegisters([]byte{0x00}, "uint16"); err == nil {
		t.Fatalf("expected error for short payload")
	}
	if _, err := decodeRegisters([]byte{0x00, 0x00}, "utf8"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
