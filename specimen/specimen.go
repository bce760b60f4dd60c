// Package specimen describes the geometry of a tensile specimen.
package specimen

import (
	"fmt"
	"math"

	"github.com/7-Dany/Stress-Strain/errors"
)

// Shape of the specimen cross-section
type Shape string

// Supported cross-sections
const (
	ShapeRounded     Shape = "rounded"
	ShapeRectangular Shape = "rectangular"
)

// Geometry holds the specimen dimensions in millimetres.
// Diameter applies to rounded specimens, Width and Height to rectangular ones.
type Geometry struct {
	Shape       Shape   `json:"shape" yaml:"shape"`
	Diameter    float64 `json:"diameter,omitempty" yaml:"diameter,omitempty"`
	Width       float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height      float64 `json:"height,omitempty" yaml:"height,omitempty"`
	GaugeLength float64 `json:"gauge_length" yaml:"gauge_length"`
}

// Rounded returns a circular specimen
func Rounded(diameter, gaugeLength float64) Geometry {
	return Geometry{Shape: ShapeRounded, Diameter: diameter, GaugeLength: gaugeLength}
}

// Rectangular returns a rectangular specimen
func Rectangular(width, height, gaugeLength float64) Geometry {
	return Geometry{Shape: ShapeRectangular, Width: width, Height: height, GaugeLength: gaugeLength}
}

// Validate checks that the shape is known and every dimension it needs is
// positive and finite.
func (g Geometry) Validate() error {
	if !positive(g.GaugeLength) {
		return errors.Invalidf("specimen", "Validate", "gauge length must be positive, got %v", g.GaugeLength)
	}

	switch g.Shape {
	case ShapeRounded:
		if !positive(g.Diameter) {
			return errors.Invalidf("specimen", "Validate", "diameter must be positive, got %v", g.Diameter)
		}
	case ShapeRectangular:
		if !positive(g.Width) || !positive(g.Height) {
			return errors.Invalidf("specimen", "Validate",
				"width and height must be positive, got %v x %v", g.Width, g.Height)
		}
	default:
		return errors.Invalidf("specimen", "Validate", "unknown shape %q", g.Shape)
	}
	return nil
}

// Area returns the cross-sectional area in mm².
// It returns 0 for a geometry that does not validate.
func (g Geometry) Area() float64 {
	if g.Validate() != nil {
		return 0
	}
	if g.Shape == ShapeRounded {
		return math.Pi / 4 * g.Diameter * g.Diameter
	}
	return g.Width * g.Height
}

// String summarises the geometry for reports
func (g Geometry) String() string {
	switch g.Shape {
	case ShapeRounded:
		return fmt.Sprintf("rounded d=%g mm, L0=%g mm, A=%.3f mm²", g.Diameter, g.GaugeLength, g.Area())
	case ShapeRectangular:
		return fmt.Sprintf("rectangular %gx%g mm, L0=%g mm, A=%.3f mm²", g.Width, g.Height, g.GaugeLength, g.Area())
	default:
		return fmt.Sprintf("unknown shape %q", g.Shape)
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
