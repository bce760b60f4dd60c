// Package analysis extracts mechanical properties from an engineering
// stress-strain series.
package analysis

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/7-Dany/Stress-Strain/errors"
)

// OffsetStrain is the strain offset of the proof-stress line
const OffsetStrain = 0.002

// YieldWindow is the half-width, in samples, of the yield refinement scan
const YieldWindow = 100

// Property labels, in presentation order
const (
	LabelYieldStress    = "Yield Stress (MPa)"
	LabelYieldStrain    = "Yield Strain"
	LabelForceAtYield   = "Force at Yield (N)"
	LabelUltimateStress = "Ultimate Tensile Strength (MPa)"
	LabelStrainAtUTS    = "Strain at UTS"
	LabelForceAtUTS     = "Force at UTS (N)"
	LabelFractureStress = "Fracture Stress (MPa)"
	LabelFractureStrain = "Fracture Strain"
	LabelYoungsModulus  = "Young's Modulus (MPa)"
)

// Labels lists every property label in presentation order
var Labels = []string{
	LabelYieldStress,
	LabelYieldStrain,
	LabelForceAtYield,
	LabelUltimateStress,
	LabelStrainAtUTS,
	LabelForceAtUTS,
	LabelFractureStress,
	LabelFractureStrain,
	LabelYoungsModulus,
}

// Properties are the results of one extraction. Indices refer to the input series.
type Properties struct {
	YoungsModulus float64 `json:"youngs_modulus"`

	YieldIndex  int     `json:"yield_index"`
	YieldStress float64 `json:"yield_stress"`
	YieldStrain float64 `json:"yield_strain"`

	UltimateIndex  int     `json:"ultimate_index"`
	UltimateStress float64 `json:"ultimate_stress"`
	StrainAtUTS    float64 `json:"strain_at_uts"`

	FractureStress float64 `json:"fracture_stress"`
	FractureStrain float64 `json:"fracture_strain"`

	// Area in mm², zero when unknown
	Area float64 `json:"area,omitempty"`
}

// ForceAtYield returns yield stress times area, false when area is unknown
func (p Properties) ForceAtYield() (float64, bool) {
	return p.YieldStress * p.Area, p.Area > 0
}

// ForceAtUTS returns ultimate stress times area, false when area is unknown
func (p Properties) ForceAtUTS() (float64, bool) {
	return p.UltimateStress * p.Area, p.Area > 0
}

// Map returns the properties keyed by label. Force labels are present only
// when the area is known.
func (p Properties) Map() map[string]float64 {
	m := map[string]float64{
		LabelYieldStress:    p.YieldStress,
		LabelYieldStrain:    p.YieldStrain,
		LabelUltimateStress: p.UltimateStress,
		LabelStrainAtUTS:    p.StrainAtUTS,
		LabelFractureStress: p.FractureStress,
		LabelFractureStrain: p.FractureStrain,
		LabelYoungsModulus:  p.YoungsModulus,
	}
	if f, ok := p.ForceAtYield(); ok {
		m[LabelForceAtYield] = f
	}
	if f, ok := p.ForceAtUTS(); ok {
		m[LabelForceAtUTS] = f
	}
	return m
}

// WriteTo writes "label: value" lines in presentation order
func (p Properties) WriteTo(w io.Writer) (int64, error) {
	m := p.Map()
	var b strings.Builder
	for _, label := range Labels {
		if v, ok := m[label]; ok {
			fmt.Fprintf(&b, "%s: %.4f\n", label, v)
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Extract computes modulus, offset yield, UTS and fracture from parallel
// strain and stress series. Area (mm²) only feeds the force figures.
func Extract(strain, stress []float64, area float64) (Properties, error) {
	n := len(strain)
	if n != len(stress) {
		return Properties{}, &errors.DegenerateDataError{
			Reason: fmt.Sprintf("strain has %d samples, stress has %d", n, len(stress)),
			Len:    n,
		}
	}
	if n < 3 {
		return Properties{}, &errors.DegenerateDataError{Reason: "need at least 3 samples", Len: n}
	}

	modulus, err := youngsModulus(strain, stress)
	if err != nil {
		return Properties{}, err
	}

	yieldIdx := offsetYield(strain, stress, modulus)
	utsIdx := argmax(stress)

	p := Properties{
		YoungsModulus:  modulus,
		YieldIndex:     yieldIdx,
		YieldStress:    stress[yieldIdx],
		YieldStrain:    strain[yieldIdx],
		UltimateIndex:  utsIdx,
		UltimateStress: stress[utsIdx],
		StrainAtUTS:    strain[utsIdx],
		FractureStress: stress[n-1],
		FractureStrain: strain[n-1],
	}
	if area > 0 && !math.IsInf(area, 0) {
		p.Area = area
	}
	return p, nil
}

// youngsModulus is the finite difference between the first non-zero strain
// sample and the next sample with a different strain.
func youngsModulus(strain, stress []float64) (float64, error) {
	n := len(strain)
	first := -1
	for i, e := range strain {
		if e != 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, &errors.DegenerateDataError{Reason: "strain never leaves zero", Len: n}
	}

	second := -1
	for i := first + 1; i < n; i++ {
		if strain[i] != strain[first] {
			second = i
			break
		}
	}
	if second < 0 {
		return 0, &errors.DegenerateDataError{Reason: "no second distinct strain sample", Len: n}
	}

	return (stress[second] - stress[first]) / (strain[second] - strain[first]), nil
}

// offsetYield seeds with the sample closest to the offset line, then returns
// the first sample in the seed's window lying on or above the line. The seed
// stands when no sample in the window qualifies.
func offsetYield(strain, stress []float64, modulus float64) int {
	n := len(strain)
	offset := func(i int) float64 {
		return modulus * (strain[i] - OffsetStrain)
	}

	seed, best := 0, math.Inf(1)
	for i := 0; i < n; i++ {
		if d := math.Abs(stress[i] - offset(i)); d < best {
			seed, best = i, d
		}
	}

	lo := max(0, seed-YieldWindow)
	hi := min(n, seed+YieldWindow)
	for i := lo; i < hi; i++ {
		if stress[i] >= offset(i) {
			return i
		}
	}
	return seed
}

// argmax returns the first index of the largest value
func argmax(v []float64) int {
	idx := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[idx] {
			idx = i
		}
	}
	return idx
}
