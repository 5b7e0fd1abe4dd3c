package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/garygsw/sensor-reader/pkg/config"
	"github.com/goburrow/modbus"
)

// registerCountByType maps a register data type to the number of 16-bit
// holding registers it spans.
var registerCountByType = map[string]uint16{
	"uint16":  1,
	"int16":   1,
	"uint32":  2,
	"int64":   4,
	"float32": 2,
}

// ModbusSource reads typed values from holding registers of a single RTU
// slave on a serial line.
type ModbusSource struct {
	handler   *modbus.RTUClientHandler
	client    modbus.Client
	registers []config.ModbusRegisterConfig
}

func NewModbusSource(cfg config.ModbusConfig, timeout time.Duration) (*ModbusSource, error) {
	for _, reg := range cfg.Registers {
		if _, ok := registerCountByType[reg.Type]; !ok {
			return nil, fmt.Errorf("register %q: unsupported type %q", reg.Name, reg.Type)
		}
	}
	handler := modbus.NewRTUClientHandler(cfg.Port)
	handler.BaudRate = cfg.BaudRate
	handler.DataBits = 8
	handler.Parity = cfg.Parity
	handler.StopBits = 1
	handler.SlaveId = cfg.SlaveID
	handler.Timeout = timeout
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connect modbus %s: %w", cfg.Port, err)
	}
	return &ModbusSource{
		handler:   handler,
		client:    modbus.NewClient(handler),
		registers: cfg.Registers,
	}, nil
}

func (s *ModbusSource) Name() string { return "modbus" }

func (s *ModbusSource) Close() error {
	if s.handler != nil {
		return s.handler.Close()
	}
	return nil
}

func (s *ModbusSource) Read(ctx context.Context) ([]Reading, error) {
	out := make([]Reading, 0, len(s.registers))
	for _, reg := range s.registers {
		if err := ctx.Err(); err != nil {
			return nil, &ReadError{Source: s.Name(), Err: err}
		}
		data, err := s.client.ReadHoldingRegisters(reg.Address, registerCountByType[reg.Type])
		if err != nil {
			return nil, &ReadError{Source: s.Name(), Err: fmt.Errorf("register %q @%d: %w", reg.Name, reg.Address, err)}
		}
		value, err := decodeRegisters(data, reg.Type)
		if err != nil {
			return nil, &ReadError{Source: s.Name(), Err: fmt.Errorf("register %q: %w", reg.Name, err)}
		}
		out = append(out, Reading{Channel: reg.Name, Raw: value})
	}
	return out, nil
}

// decodeRegisters interprets big-endian register bytes as the given type.
func decodeRegisters(data []byte, dataType string) (float64, error) {
	want := int(registerCountByType[dataType]) * 2
	if len(data) != want {
		return 0, fmt.Errorf("decode %s: got %d bytes, want %d", dataType, len(data), want)
	}
	switch dataType {
	case "uint16":
		return float64(binary.BigEndian.Uint16(data)), nil
	case "int16":
		return float64(int16(binary.BigEndian.Uint16(data))), nil
	case "uint32":
		return float64(binary.BigEndian.Uint32(data)), nil
	case "int64":
		return float64(int64(binary.BigEndian.Uint64(data))), nil
	case "float32":
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	default:
		return 0, fmt.Errorf("unsupported type %q", dataType)
	}
}
