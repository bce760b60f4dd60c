// Package codec converts between 10-bit ADC codes and physical force and
// displacement for a hydraulic tensile rig.
//
// The force channel measures hydraulic pressure: a code maps linearly onto
// 0..MaxVoltage, which maps linearly onto 0..MaxPressureBar, and force is
// pressure times piston area. The displacement channel is a linear
// potentiometer over 0..PotTravelMM. Encoding saturates at both ends of the
// code range and truncates toward zero.
package codec

import (
	"math"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/types"
)

// PascalPerBar converts bar to pascal
const PascalPerBar = 1e5

// truncation guard in code units, absorbs float error in Encode(Decode(c))
const codeEpsilon = 1e-9

// Calibration describes the linear sensor chain of the rig.
type Calibration struct {
	MaxVoltage     float64 `json:"max_voltage" yaml:"max_voltage"`
	MaxPressureBar float64 `json:"max_pressure_bar" yaml:"max_pressure_bar"`
	PistonAreaM2   float64 `json:"piston_area_m2" yaml:"piston_area_m2"`
	PotTravelMM    float64 `json:"pot_travel_mm" yaml:"pot_travel_mm"`
	ADCMax         int     `json:"adc_max" yaml:"adc_max"`
}

// DefaultCalibration is the production rig: 250 bar transducer, 0.016 m²
// piston and a 50 mm potentiometer on a 10-bit ADC.
func DefaultCalibration() Calibration {
	return Calibration{
		MaxVoltage:     10,
		MaxPressureBar: 250,
		PistonAreaM2:   0.016,
		PotTravelMM:    50,
		ADCMax:         1023,
	}
}

// BenchCalibration is the bench setup with a 10 bar transducer and a
// 200 mm potentiometer.
func BenchCalibration() Calibration {
	return Calibration{
		MaxVoltage:     10,
		MaxPressureBar: 10,
		PistonAreaM2:   0.016,
		PotTravelMM:    200,
		ADCMax:         1023,
	}
}

// Validate checks every calibration constant is positive
func (c Calibration) Validate() error {
	switch {
	case !(c.MaxVoltage > 0):
		return errors.Invalidf("codec", "Validate", "max voltage must be positive, got %v", c.MaxVoltage)
	case !(c.MaxPressureBar > 0):
		return errors.Invalidf("codec", "Validate", "max pressure must be positive, got %v", c.MaxPressureBar)
	case !(c.PistonAreaM2 > 0):
		return errors.Invalidf("codec", "Validate", "piston area must be positive, got %v", c.PistonAreaM2)
	case !(c.PotTravelMM > 0):
		return errors.Invalidf("codec", "Validate", "pot travel must be positive, got %v", c.PotTravelMM)
	case c.ADCMax <= 0:
		return errors.Invalidf("codec", "Validate", "adc max must be positive, got %d", c.ADCMax)
	}
	return nil
}

// FullScaleForce is the force in N represented by code ADCMax
func (c Calibration) FullScaleForce() float64 {
	return c.MaxPressureBar * PascalPerBar * c.PistonAreaM2
}

// Codes is one encoded sample. The Clamped flags report saturation of the
// corresponding channel.
type Codes struct {
	Pressure            int  `json:"pressure"`
	Displacement        int  `json:"displacement"`
	PressureClamped     bool `json:"pressure_clamped,omitempty"`
	DisplacementClamped bool `json:"displacement_clamped,omitempty"`
}

// Saturated reports whether either channel was clipped
func (c Codes) Saturated() bool {
	return c.PressureClamped || c.DisplacementClamped
}

// Codec converts with a fixed calibration. The zero value is not usable; use New.
type Codec struct {
	cal Calibration
}

// New returns a codec for a validated calibration
func New(cal Calibration) (*Codec, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &Codec{cal: cal}, nil
}

// Calibration returns the calibration in use
func (c *Codec) Calibration() Calibration {
	return c.cal
}

// DecodeForce maps a pressure-channel code to force in N
func (c *Codec) DecodeForce(code int) float64 {
	voltage := float64(code) * c.cal.MaxVoltage / float64(c.cal.ADCMax)
	pressureBar := voltage / c.cal.MaxVoltage * c.cal.MaxPressureBar
	return pressureBar * PascalPerBar * c.cal.PistonAreaM2
}

// DecodeDisplacement maps a displacement-channel code to mm
func (c *Codec) DecodeDisplacement(code int) float64 {
	return float64(code) / float64(c.cal.ADCMax) * c.cal.PotTravelMM
}

// Decode maps both channels back to a sample
func (c *Codec) Decode(codes Codes) types.Sample {
	return types.Sample{
		Force:        c.DecodeForce(codes.Pressure),
		Displacement: c.DecodeDisplacement(codes.Displacement),
	}
}

// Encode maps force in N and displacement in mm onto codes, saturating out
// of range values. It never fails.
func (c *Codec) Encode(force, displacement float64) Codes {
	pressureBar := force / c.cal.PistonAreaM2 / PascalPerBar
	p, pClamped := c.quantize(pressureBar / c.cal.MaxPressureBar)
	d, dClamped := c.quantize(displacement / c.cal.PotTravelMM)
	return Codes{
		Pressure:            p,
		Displacement:        d,
		PressureClamped:     pClamped,
		DisplacementClamped: dClamped,
	}
}

// EncodeSample is Encode for a sample
func (c *Codec) EncodeSample(s types.Sample) Codes {
	return c.Encode(s.Force, s.Displacement)
}

// quantize scales a 0..1 fraction to a code, clips then truncates
func (c *Codec) quantize(fraction float64) (int, bool) {
	limit := float64(c.cal.ADCMax)
	raw := fraction * limit
	switch {
	case math.IsNaN(raw) || raw < -codeEpsilon:
		return 0, true
	case raw > limit+codeEpsilon:
		return c.cal.ADCMax, true
	}
	code := int(math.Floor(raw + codeEpsilon))
	if code < 0 {
		code = 0
	}
	if code > c.cal.ADCMax {
		code = c.cal.ADCMax
	}
	return code, false
}

// Channel returns the clamp flag for a channel
func (c Codes) Channel(ch types.Channel) bool {
	if ch == types.ChannelPressure {
		return c.PressureClamped
	}
	return c.DisplacementClamped
}
