package sensor

import "testing"

func TestRTDCode(t *testing.T) {
	tests := []struct {
		msb, lsb byte
		want     uint16
	}{
		{0x00, 0x00, 0},
		{0x40, 0x00, 8192},     // exactly R0 with Rref=400
		{0x40, 0x02, 8193},     // one code up, not an off-by-one neighbor
		{0xFF, 0xFE, 32767},    // full scale
		{0x12, 0x34 | 1, 2330}, // fault bit must not leak into the code
	}
	for _, tt := range tests {
		if got := rtdCode(tt.msb, tt.lsb); got != tt.want {
			t.Fatalf("rtdCode(%#02x, %#02x) = %d; want %d", tt.msb, tt.lsb, got, tt.want)
		}
	}
}
