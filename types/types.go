// Package types contains value types shared across the tensile pipeline.
package types

import "fmt"

// Sample is one force/displacement reading, ordered only by arrival.
// Force is in newtons and displacement in millimetres.
type Sample struct {
	Force        float64 `json:"force"`
	Displacement float64 `json:"displacement"`
}

// String formats the sample for logs
func (s Sample) String() string {
	return fmt.Sprintf("F=%.3f N d=%.4f mm", s.Force, s.Displacement)
}

// Channel names one ADC channel of the rig
type Channel string

// ADC channels
const (
	ChannelPressure     Channel = "pressure"
	ChannelDisplacement Channel = "displacement"
)

// Point is one stress/strain pair. Stress is in MPa.
type Point struct {
	Strain float64 `json:"strain"`
	Stress float64 `json:"stress"`
}
