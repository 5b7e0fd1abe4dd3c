// Package calibrate holds the pure raw-to-physical conversion functions, one
// per channel kind. Each function checks its input against the sensor's
// documented operating domain and fails with RangeError outside of it instead
// of returning a plausible-looking but wrong number.
package calibrate

import (
	"errors"
	"fmt"
	"math"
)

// Func converts a raw sensor value into a physical value. It returns a
// RangeError when raw is outside the channel's valid domain.
type Func func(raw float64) (float64, error)

// RangeError reports a raw value outside a channel's documented domain.
type RangeError struct {
	Raw float64
	Min float64
	Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("raw value %g outside valid domain [%g, %g]", e.Raw, e.Min, e.Max)
}

// IsRangeError reports whether err is (or wraps) a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// Pt100 RTD behind a MAX31865 front end with a 400 ohm reference resistor.
// Callendar-Van Dusen coefficients for a standard alpha=0.00385 element.
const (
	rtdA    = 0.00390830
	rtdB    = -0.0000005775
	rtdRRef = 400.0
	rtdR0   = 100.0

	// The quadratic Callendar-Van Dusen inverse is valid for 0..850 degC.
	// RTDRawMin is the 15-bit code for exactly R0 (0 degC); RTDRawMax is the
	// code for R(850 degC) = 390.48 ohm.
	RTDRawMin = 8192
	RTDRawMax = 31988

	RTDTempMinC = 0.0
	RTDTempMaxC = 850.0
)

// RTDTemperature converts a 15-bit MAX31865 conversion code to degrees
// Celsius. Codes outside [RTDRawMin, RTDRawMax] are rejected: below R0 the
// quadratic inverse is not valid and near the code rails the chip is
// reporting an open or shorted element, not a temperature.
func RTDTemperature(raw float64) (float64, error) {
	if raw != math.Trunc(raw) || raw < RTDRawMin || raw > RTDRawMax {
		return 0, &RangeError{Raw: raw, Min: RTDRawMin, Max: RTDRawMax}
	}
	r := raw * rtdRRef / 32768.0
	disc := rtdR0*rtdR0*rtdA*rtdA - 4*rtdR0*rtdB*(rtdR0-r)
	temp := (-rtdR0*rtdA + math.Sqrt(disc)) / (2 * rtdR0 * rtdB)
	if math.IsNaN(temp) || temp < RTDTempMinC || temp > RTDTempMaxC {
		return 0, &RangeError{Raw: raw, Min: RTDRawMin, Max: RTDRawMax}
	}
	return temp, nil
}

// ADC code rails for a 16-bit ADS1115. A conversion pinned at either rail
// means the input is outside the programmed full-scale range.
const (
	adcCodeMin = -32768
	adcCodeMax = 32767
)

// ADCMillivolts returns a converter from a signed 16-bit ADS1115 code to
// millivolts for the given full-scale range, with a linear per-channel
// calibration applied on top.
func ADCMillivolts(fullScaleMillivolts, scale, offset float64) Func {
	return func(raw float64) (float64, error) {
		if raw != math.Trunc(raw) || raw <= adcCodeMin || raw >= adcCodeMax {
			return 0, &RangeError{Raw: raw, Min: adcCodeMin + 1, Max: adcCodeMax - 1}
		}
		mv := raw*fullScaleMillivolts/32768.0*scale + offset
		return mv, nil
	}
}

// Irradiance calibration for the silicon pyranometer: 54.57 mV corresponds to
// 1000 W/m2 at 25 degC, with a 0.05 %/K cell temperature coefficient.
const (
	irradianceMVPerKW = 54.57
	irradianceTCoeff  = 0.0005
	irradianceRefC    = 25.0

	IrradianceMin = 0.0
	IrradianceMax = 2000.0
)

// Irradiance derives solar irradiance in W/m2 from the photodiode millivolt
// reading and the cell temperature in degrees Celsius.
func Irradiance(millivolts, tempC float64) (float64, error) {
	if millivolts < 0 {
		return 0, &RangeError{Raw: millivolts, Min: 0, Max: irradianceMVPerKW * IrradianceMax / 1000}
	}
	irr := millivolts / irradianceMVPerKW * 1000 / (1 + irradianceTCoeff*(tempC-irradianceRefC))
	if math.IsNaN(irr) || math.IsInf(irr, 0) || irr < IrradianceMin || irr > IrradianceMax {
		return 0, &RangeError{Raw: millivolts, Min: 0, Max: irradianceMVPerKW * IrradianceMax / 1000}
	}
	return irr, nil
}

// Linear returns a plain scale/offset converter for channels that need no
// domain restriction beyond being finite, such as Modbus register reads that
// arrive already in engineering units.
func Linear(scale, offset float64) Func {
	return func(raw float64) (float64, error) {
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return 0, &RangeError{Raw: raw, Min: math.Inf(-1), Max: math.Inf(1)}
		}
		return raw*scale + offset, nil
	}
}
