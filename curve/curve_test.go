package curve

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/specimen"
)

func steel() Params {
	return Params{YieldStress: 250, UltimateStress: 400, ModulusGPa: 200, FractureStrain: 0.2}
}

func TestSynthesize_Shape(t *testing.T) {
	for _, easing := range []Easing{EasingSqrt, EasingSine} {
		t.Run(string(easing), func(t *testing.T) {
			m := DefaultModel()
			m.Easing = easing
			c, err := Synthesize(steel(), m)
			require.NoError(t, err)

			assert.Equal(t, 5000+2999+1999, c.Len())
			require.Equal(t, len(c.Strain), len(c.Stress))

			chk.Float64(t, "first strain", 1e-15, c.Strain[0], 0)
			chk.Float64(t, "first stress", 1e-15, c.Stress[0], 0)
			chk.Float64(t, "yield strain", 1e-15, c.YieldStrain, 0.00125)
			chk.Float64(t, "last strain", 1e-12, c.Strain[c.Len()-1], 0.2)
			chk.Float64(t, "fracture stress", 1e-9, c.Stress[c.Len()-1], 250)

			peak := 0
			for i := 1; i < c.Len(); i++ {
				if c.Strain[i] < c.Strain[i-1] {
					t.Fatalf("strain decreases at %d", i)
				}
				if c.Stress[i] > c.Stress[peak] {
					peak = i
				}
			}
			chk.Float64(t, "uts", 1e-9, c.Stress[peak], 400)
			chk.Float64(t, "uts strain", 1e-12, c.Strain[peak], 0.15)

			for i := 1; i <= peak; i++ {
				assert.GreaterOrEqual(t, c.Stress[i], c.Stress[i-1], "rising at %d", i)
			}
			for i := peak + 1; i < c.Len(); i++ {
				assert.LessOrEqual(t, c.Stress[i], c.Stress[i-1], "falling at %d", i)
			}
		})
	}
}

func TestSynthesize_BoundariesShared(t *testing.T) {
	m := DefaultModel()
	m.Density = Density{Elastic: 3, Hardening: 3, Necking: 3}
	c, err := Synthesize(steel(), m)
	require.NoError(t, err)

	require.Equal(t, 7, c.Len())
	assert.InDeltaSlice(t, []float64{0, 0.000625, 0.00125, 0.075625, 0.15, 0.175, 0.2}, c.Strain, 1e-12)
	assert.InDelta(t, 125, c.Stress[1], 1e-9)
	assert.InDelta(t, 250, c.Stress[2], 1e-9)
	assert.InDelta(t, 400, c.Stress[4], 1e-9)
}

func TestSynthesize_Continuity(t *testing.T) {
	c, err := Synthesize(steel(), DefaultModel())
	require.NoError(t, err)

	// largest jump between neighbours stays small at both boundaries
	for _, boundary := range []int{4999, 4999 + 2999} {
		jump := c.Stress[boundary+1] - c.Stress[boundary]
		assert.Less(t, jump, 5.0, "jump at %d", boundary)
		assert.Greater(t, c.Strain[boundary+1], c.Strain[boundary])
	}
}

func TestSynthesize_FractureByStress(t *testing.T) {
	p := steel()
	p.FractureStress = 320
	m := DefaultModel()
	m.Fracture = FractureByStress

	c, err := Synthesize(p, m)
	require.NoError(t, err)
	chk.Float64(t, "fracture stress", 1e-9, c.Stress[c.Len()-1], 320)
}

func TestSynthesize_ZeroModelUsesDefaults(t *testing.T) {
	c, err := Synthesize(steel(), Model{})
	require.NoError(t, err)
	assert.Equal(t, 9998, c.Len())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params func(*Params)
		model  func(*Model)
	}{
		{"zero yield", func(p *Params) { p.YieldStress = 0 }, nil},
		{"ultimate below yield", func(p *Params) { p.UltimateStress = 200 }, nil},
		{"ultimate equal yield", func(p *Params) { p.UltimateStress = 250 }, nil},
		{"negative modulus", func(p *Params) { p.ModulusGPa = -1 }, nil},
		{"fracture before ultimate", func(p *Params) { p.FractureStrain = 0.1 }, nil},
		{"yield strain past ultimate", func(p *Params) { p.ModulusGPa = 0.001 }, nil},
		{"stress mode without stress", nil, func(m *Model) { m.Fracture = FractureByStress }},
		{"stress mode above uts", func(p *Params) { p.FractureStress = 500 }, func(m *Model) { m.Fracture = FractureByStress }},
		{"unknown easing", nil, func(m *Model) { m.Easing = "cubic" }},
		{"unknown fracture", nil, func(m *Model) { m.Fracture = "time" }},
		{"thin segment", nil, func(m *Model) { m.Density.Necking = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := steel(), DefaultModel()
			if tt.params != nil {
				tt.params(&p)
			}
			if tt.model != nil {
				tt.model(&m)
			}
			c, err := Synthesize(p, m)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestCurve_Project(t *testing.T) {
	m := DefaultModel()
	m.Density = Density{Elastic: 3, Hardening: 3, Necking: 3}
	c, err := Synthesize(steel(), m)
	require.NoError(t, err)

	g := specimen.Rectangular(4, 10, 50)
	samples, err := c.Project(g)
	require.NoError(t, err)
	require.Len(t, samples, c.Len())

	assert.InDelta(t, 250*40.0, samples[2].Force, 1e-9)
	assert.InDelta(t, 0.00125*50, samples[2].Displacement, 1e-12)
	assert.InDelta(t, 10, samples[6].Displacement, 1e-12)

	_, err = c.Project(specimen.Geometry{Shape: specimen.ShapeRounded})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	pts := c.Points()
	assert.Equal(t, c.Stress[4], pts[4].Stress)
}
