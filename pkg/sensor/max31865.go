package sensor

import (
	"context"
	"fmt"

	"github.com/garygsw/sensor-reader/pkg/config"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// MAX31865 register map.
const (
	regConfiguration = 0x00
	regRTDMSB        = 0x01
	regRTDLSB        = 0x02
	regHighFaultMSB  = 0x03
	regHighFaultLSB  = 0x04
	regLowFaultMSB   = 0x05
	regLowFaultLSB   = 0x06
	regFaultStatus   = 0x07

	spiWriteBit = 0x80
)

// Configuration register bits.
const (
	conf50HzFilter           = 1 << 0
	confFaultStatusAutoClear = 1 << 1
	conf3WireRTD             = 1 << 4
	confConversionModeAuto   = 1 << 6
	confVBiasOn              = 1 << 7
)

// MAX31865Source reads the RTD conversion code from a MAX31865 front end
// over SPI. The chip runs in automatic conversion mode with VBIAS on, so a
// read is just pulling the two RTD registers.
type MAX31865Source struct {
	port spi.PortCloser
	conn spi.Conn
	name string
}

func NewMAX31865Source(cfg config.RTDConfig) (*MAX31865Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(cfg.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("open spi: %w", err)
	}
	conn, err := port.Connect(100*physic.KiloHertz, spi.Mode1, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	s := &MAX31865Source{port: port, conn: conn, name: cfg.Name}
	if err := s.configure(cfg.ThreeWire); err != nil {
		_ = port.Close()
		return nil, err
	}
	return s, nil
}

func (s *MAX31865Source) configure(threeWire bool) error {
	conf := byte(confVBiasOn | conf50HzFilter | confConversionModeAuto)
	if threeWire {
		conf |= conf3WireRTD
	}
	if err := s.writeReg(regConfiguration, conf|confFaultStatusAutoClear); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	// widen the fault thresholds to the full code range
	for _, w := range []struct {
		reg byte
		val byte
	}{
		{regLowFaultMSB, 0x00},
		{regLowFaultLSB, 0x00},
		{regHighFaultMSB, 0xFF},
		{regHighFaultLSB, 0xFF},
	} {
		if err := s.writeReg(w.reg, w.val); err != nil {
			return fmt.Errorf("write fault threshold: %w", err)
		}
	}
	return nil
}

func (s *MAX31865Source) Name() string { return s.name }

func (s *MAX31865Source) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

func (s *MAX31865Source) Read(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ReadError{Source: s.name, Err: err}
	}
	msb, err := s.readReg(regRTDMSB)
	if err != nil {
		return nil, &ReadError{Source: s.name, Err: fmt.Errorf("read rtd msb: %w", err)}
	}
	lsb, err := s.readReg(regRTDLSB)
	if err != nil {
		return nil, &ReadError{Source: s.name, Err: fmt.Errorf("read rtd lsb: %w", err)}
	}
	// bit 0 of the LSB is the fault flag
	if lsb&0x01 != 0 {
		status, serr := s.readReg(regFaultStatus)
		if serr != nil {
			return nil, &ReadError{Source: s.name, Err: fmt.Errorf("rtd fault, status unreadable: %w", serr)}
		}
		return nil, &ReadError{Source: s.name, Err: fmt.Errorf("rtd fault, status 0x%02X", status)}
	}
	raw := rtdCode(msb, lsb)
	return []Reading{{Channel: s.name, Raw: float64(raw)}}, nil
}

func (s *MAX31865Source) readReg(addr byte) (byte, error) {
	buf := make([]byte, 2)
	if err := s.conn.Tx([]byte{addr, 0x00}, buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

func (s *MAX31865Source) writeReg(addr, val byte) error {
	return s.conn.Tx([]byte{addr | spiWriteBit, val}, nil)
}

// rtdCode assembles the 15-bit conversion code from the two RTD registers.
func rtdCode(msb, lsb byte) uint16 {
	return uint16(msb)<<7 | uint16(lsb&0xFE)>>1
}
