// Package curve synthesizes a three-segment engineering stress-strain curve:
// linear elastic up to yield, eased hardening up to the ultimate tensile
// strength and eased necking down to fracture.
package curve

import (
	"math"

	"github.com/cpmech/gosl/utl"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/types"
)

// Easing selects the shape of the hardening and necking segments
type Easing string

// Easing functions map t in [0,1] onto [0,1] with e(0)=0 and e(1)=1
const (
	EasingSqrt Easing = "sqrt"
	EasingSine Easing = "sine"
)

// FractureMode selects where the necking segment ends
type FractureMode string

// Fracture modes
const (
	// FractureByStrain descends from UTS back to the yield stress at the fracture strain
	FractureByStrain FractureMode = "strain"
	// FractureByStress descends from UTS to Params.FractureStress at the fracture strain
	FractureByStress FractureMode = "stress"
)

// DefaultUltimateStrain is the strain at the ultimate tensile strength
const DefaultUltimateStrain = 0.15

// Params are the material inputs. Stresses are in MPa, modulus in GPa.
type Params struct {
	YieldStress    float64 `json:"yield_stress" yaml:"yield_stress"`
	UltimateStress float64 `json:"ultimate_stress" yaml:"ultimate_stress"`
	ModulusGPa     float64 `json:"modulus_gpa" yaml:"modulus_gpa"`
	FractureStrain float64 `json:"fracture_strain" yaml:"fracture_strain"`
	FractureStress float64 `json:"fracture_stress,omitempty" yaml:"fracture_stress,omitempty"`
}

// Modulus returns Young's modulus in MPa
func (p Params) Modulus() float64 {
	return p.ModulusGPa * 1000
}

// YieldStrain is the strain at the end of the elastic segment
func (p Params) YieldStrain() float64 {
	return p.YieldStress / p.Modulus()
}

// Density is the number of points per segment, boundaries included
type Density struct {
	Elastic   int `json:"elastic" yaml:"elastic"`
	Hardening int `json:"hardening" yaml:"hardening"`
	Necking   int `json:"necking" yaml:"necking"`
}

// DefaultDensity returns 5000/3000/2000 points
func DefaultDensity() Density {
	return Density{Elastic: 5000, Hardening: 3000, Necking: 2000}
}

// Model selects the curve shape. Zero fields take their defaults.
type Model struct {
	Easing         Easing       `json:"easing" yaml:"easing"`
	Fracture       FractureMode `json:"fracture" yaml:"fracture"`
	UltimateStrain float64      `json:"ultimate_strain" yaml:"ultimate_strain"`
	Density        Density      `json:"density" yaml:"density"`
}

// DefaultModel is square-root easing with fracture by strain
func DefaultModel() Model {
	return Model{
		Easing:         EasingSqrt,
		Fracture:       FractureByStrain,
		UltimateStrain: DefaultUltimateStrain,
		Density:        DefaultDensity(),
	}
}

func (m Model) withDefaults() Model {
	d := DefaultModel()
	if m.Easing == "" {
		m.Easing = d.Easing
	}
	if m.Fracture == "" {
		m.Fracture = d.Fracture
	}
	if m.UltimateStrain == 0 {
		m.UltimateStrain = d.UltimateStrain
	}
	if m.Density == (Density{}) {
		m.Density = d.Density
	}
	return m
}

func (e Easing) apply(t float64) float64 {
	if e == EasingSine {
		return math.Sin(math.Pi / 2 * t)
	}
	return math.Sqrt(t)
}

// Validate checks params against the model before any array is built
func Validate(p Params, m Model) error {
	m = m.withDefaults()
	const comp, method = "curve", "Validate"

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"yield stress", p.YieldStress},
		{"ultimate stress", p.UltimateStress},
		{"modulus", p.ModulusGPa},
		{"fracture strain", p.FractureStrain},
		{"ultimate strain", m.UltimateStrain},
	} {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return errors.Invalidf(comp, method, "%s must be positive and finite, got %v", f.name, f.v)
		}
	}

	switch m.Easing {
	case EasingSqrt, EasingSine:
	default:
		return errors.Invalidf(comp, method, "unknown easing %q", m.Easing)
	}

	if p.UltimateStress <= p.YieldStress {
		return errors.Invalidf(comp, method, "ultimate stress %v must exceed yield stress %v",
			p.UltimateStress, p.YieldStress)
	}
	if ey := p.YieldStrain(); ey >= m.UltimateStrain {
		return errors.Invalidf(comp, method, "yield strain %v must be below ultimate strain %v",
			ey, m.UltimateStrain)
	}
	if p.FractureStrain <= m.UltimateStrain {
		return errors.Invalidf(comp, method, "fracture strain %v must exceed ultimate strain %v",
			p.FractureStrain, m.UltimateStrain)
	}

	switch m.Fracture {
	case FractureByStrain:
	case FractureByStress:
		if !(p.FractureStress > 0) || p.FractureStress > p.UltimateStress {
			return errors.Invalidf(comp, method, "fracture stress %v must be in (0, %v]",
				p.FractureStress, p.UltimateStress)
		}
	default:
		return errors.Invalidf(comp, method, "unknown fracture mode %q", m.Fracture)
	}

	d := m.Density
	if d.Elastic < 2 || d.Hardening < 2 || d.Necking < 2 {
		return errors.Invalidf(comp, method, "each segment needs at least 2 points, got %d/%d/%d",
			d.Elastic, d.Hardening, d.Necking)
	}
	return nil
}

// Curve is a synthesized stress-strain series. Strain is non-decreasing and
// stress is continuous at both segment boundaries.
type Curve struct {
	Strain []float64
	Stress []float64

	YieldStrain    float64
	UltimateStrain float64
	FractureStrain float64
}

// Synthesize builds the three segments. Adjacent segments share their
// boundary point exactly once.
func Synthesize(p Params, m Model) (*Curve, error) {
	if err := Validate(p, m); err != nil {
		return nil, err
	}
	m = m.withDefaults()

	E := p.Modulus()
	ey, eu, ef := p.YieldStrain(), m.UltimateStrain, p.FractureStrain
	sy, su := p.YieldStress, p.UltimateStress
	send := sy
	if m.Fracture == FractureByStress {
		send = p.FractureStress
	}

	elastic := utl.LinSpace(0, ey, m.Density.Elastic)
	hardening := utl.LinSpace(ey, eu, m.Density.Hardening)[1:]
	necking := utl.LinSpace(eu, ef, m.Density.Necking)[1:]

	n := len(elastic) + len(hardening) + len(necking)
	c := &Curve{
		Strain:         make([]float64, 0, n),
		Stress:         make([]float64, 0, n),
		YieldStrain:    ey,
		UltimateStrain: eu,
		FractureStrain: ef,
	}

	for _, e := range elastic {
		c.append(e, E*e)
	}
	for _, e := range hardening {
		t := clamp01((e - ey) / (eu - ey))
		c.append(e, sy+(su-sy)*m.Easing.apply(t))
	}
	for _, e := range necking {
		t := clamp01((e - eu) / (ef - eu))
		c.append(e, su-(su-send)*m.Easing.apply(t))
	}
	return c, nil
}

func (c *Curve) append(strain, stress float64) {
	c.Strain = append(c.Strain, strain)
	c.Stress = append(c.Stress, stress)
}

// Len returns the number of points
func (c *Curve) Len() int {
	return len(c.Strain)
}

// Points returns the curve as stress/strain pairs
func (c *Curve) Points() []types.Point {
	pts := make([]types.Point, c.Len())
	for i := range pts {
		pts[i] = types.Point{Strain: c.Strain[i], Stress: c.Stress[i]}
	}
	return pts
}

// Project maps the curve onto a specimen: force = stress x area and
// displacement = strain x gauge length.
func (c *Curve) Project(g specimen.Geometry) ([]types.Sample, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.Wrap(err, "curve", "Project", "geometry check")
	}
	area := g.Area()
	samples := make([]types.Sample, c.Len())
	for i := range samples {
		samples[i] = types.Sample{
			Force:        c.Stress[i] * area,
			Displacement: c.Strain[i] * g.GaugeLength,
		}
	}
	return samples, nil
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}
