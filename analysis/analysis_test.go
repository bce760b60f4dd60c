package analysis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/curve"
	"github.com/7-Dany/Stress-Strain/errors"
)

func TestExtract_SynthesizedSteel(t *testing.T) {
	c, err := curve.Synthesize(curve.Params{
		YieldStress:    250,
		UltimateStress: 400,
		ModulusGPa:     200,
		FractureStrain: 0.2,
	}, curve.DefaultModel())
	require.NoError(t, err)

	p, err := Extract(c.Strain, c.Stress, 78.54)
	require.NoError(t, err)

	chk.Float64(t, "modulus", 1e-3, p.YoungsModulus, 200000)
	chk.Float64(t, "uts", 1e-9, p.UltimateStress, 400)
	chk.Float64(t, "strain at uts", 1e-12, p.StrainAtUTS, 0.15)
	chk.Float64(t, "fracture stress", 1e-9, p.FractureStress, 250)
	chk.Float64(t, "fracture strain", 1e-12, p.FractureStrain, 0.2)

	// one refinement window of elastic samples is 5 MPa
	assert.InDelta(t, 250, p.YieldStress, 5)
	assert.InDelta(t, 0.00125, p.YieldStrain, 3e-5)
	assert.Equal(t, p.YieldStress, c.Stress[p.YieldIndex])

	f, ok := p.ForceAtUTS()
	require.True(t, ok)
	assert.InDelta(t, 400*78.54, f, 1e-6)
}

func TestExtract_ModulusPolicy(t *testing.T) {
	// leading zeros and a repeated strain are skipped
	strain := []float64{0, 0, 0.001, 0.001, 0.003, 0.004}
	stress := []float64{0, 1, 200, 210, 500, 600}

	p, err := Extract(strain, stress, 0)
	require.NoError(t, err)
	chk.Float64(t, "modulus", 1e-9, p.YoungsModulus, (500.0-200.0)/(0.003-0.001))
}

func TestExtract_SeriesScenario(t *testing.T) {
	p, err := Extract([]float64{0, 0.002, 0.006}, []float64{0, 12.73, 25.46}, 78.54)
	require.NoError(t, err)
	assert.InDelta(t, (25.46-12.73)/0.004, p.YoungsModulus, 1e-9)
	assert.Equal(t, 2, p.UltimateIndex)
	assert.Equal(t, 25.46, p.FractureStress)
}

func TestExtract_RefinementPicksFirstOnOrAboveLine(t *testing.T) {
	// modulus 1000, offset line crosses between samples 4 and 5
	strain := []float64{0, 0.001, 0.002, 0.003, 0.004, 0.005, 0.006, 0.007}
	stress := []float64{0, 1, 2, 2.5, 2.8, 2.9, 3.0, 3.0}

	p, err := Extract(strain, stress, 0)
	require.NoError(t, err)
	chk.Float64(t, "modulus", 1e-9, p.YoungsModulus, 1000)
	// every sample in the window from index 0 is on or above the line
	assert.Equal(t, 0, p.YieldIndex)
}

func TestExtract_WindowFallbackKeepsSeed(t *testing.T) {
	n := 400
	strain := make([]float64, n)
	stress := make([]float64, n)
	for i := range strain {
		strain[i] = 0.001 * float64(i)
	}
	// modulus 100000 from samples 1 and 2, offset line 100*i - 200
	stress[0], stress[1], stress[2] = 0, 0, 100
	for i := 3; i < n; i++ {
		gap := 1.0 + float64(abs(i-300))
		stress[i] = 100*float64(i) - 200 - gap
	}

	p, err := Extract(strain, stress, 0)
	require.NoError(t, err)
	chk.Float64(t, "modulus", 1e-6, p.YoungsModulus, 100000)
	assert.Equal(t, 300, p.YieldIndex)
}

func TestExtract_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		strain []float64
		stress []float64
		reason string
	}{
		{"empty", nil, nil, "at least 3"},
		{"two samples", []float64{0, 0.1}, []float64{0, 1}, "at least 3"},
		{"length mismatch", []float64{0, 0.1, 0.2}, []float64{0, 1}, "strain has 3"},
		{"flat zero strain", []float64{0, 0, 0, 0}, []float64{0, 1, 2, 3}, "never leaves zero"},
		{"single distinct strain", []float64{0, 0.1, 0.1, 0.1}, []float64{0, 1, 2, 3}, "second distinct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.strain, tt.stress, 10)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrDegenerateData)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestProperties_Map(t *testing.T) {
	p := Properties{YieldStress: 250, UltimateStress: 400, Area: 10}

	m := p.Map()
	assert.Len(t, m, len(Labels))
	for _, label := range Labels {
		assert.Contains(t, m, label)
	}
	assert.Equal(t, 2500.0, m["Force at Yield (N)"])
	assert.Equal(t, 4000.0, m["Force at UTS (N)"])

	p.Area = 0
	m = p.Map()
	assert.NotContains(t, m, LabelForceAtYield)
	assert.NotContains(t, m, LabelForceAtUTS)
	assert.Len(t, m, len(Labels)-2)
}

func TestProperties_WriteTo(t *testing.T) {
	var buf bytes.Buffer
	_, err := Properties{YieldStress: 250, YoungsModulus: 200000, Area: 1}.WriteTo(&buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(Labels))
	assert.Equal(t, "Yield Stress (MPa): 250.0000", lines[0])
	assert.Equal(t, "Young's Modulus (MPa): 200000.0000", lines[len(lines)-1])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
