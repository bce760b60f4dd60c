package series

import (
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/types"
)

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New(specimen.Rounded(10, 50), Deps{})
	require.NoError(t, err)
	return a
}

func TestNew_InvalidGeometry(t *testing.T) {
	_, err := New(specimen.Rounded(0, 50), Deps{})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestObserve_RejectedWhenIdle(t *testing.T) {
	a := newAggregator(t)

	err := a.Observe(100, 1)
	assert.ErrorIs(t, err, errors.ErrNotCollecting)
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, StateIdle, a.State())
}

func TestObserve_Scenario(t *testing.T) {
	a := newAggregator(t)
	id := a.Begin()
	assert.NotEmpty(t, id)
	assert.Equal(t, StateCollecting, a.State())

	require.NoError(t, a.Observe(0, 0))
	require.NoError(t, a.Observe(1000, 0.1))
	require.NoError(t, a.ObserveSample(types.Sample{Force: 2000, Displacement: 0.3}))

	snap := a.Snapshot()
	assert.Equal(t, id, snap.SessionID)
	require.Equal(t, 3, snap.Len())
	assert.InDeltaSlice(t, []float64{0, 12.732, 25.465}, snap.Stress, 1e-3)
	assert.InDeltaSlice(t, []float64{0, 0.002, 0.006}, snap.Strain, 1e-12)
	assert.Equal(t, []float64{0, 1000, 2000}, snap.Force)
	assert.Equal(t, []float64{0, 0.1, 0.3}, snap.Displacement)
}

func TestObserve_StrainRelativeToFirstSample(t *testing.T) {
	a := newAggregator(t)
	a.Begin()

	require.NoError(t, a.Observe(10, 2.0))
	require.NoError(t, a.Observe(20, 2.5))

	snap := a.Snapshot()
	assert.Equal(t, 0.0, snap.Strain[0])
	assert.InDelta(t, 0.01, snap.Strain[1], 1e-12)
}

func TestEnd_KeepsDataUntilBegin(t *testing.T) {
	a := newAggregator(t)
	first := a.Begin()
	require.NoError(t, a.Observe(1, 0))
	require.NoError(t, a.Observe(2, 0.1))
	a.End()

	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 2, a.Len())
	assert.ErrorIs(t, a.Observe(3, 0.2), errors.ErrNotCollecting)

	second := a.Begin()
	assert.NotEqual(t, first, second)
	assert.Equal(t, 0, a.Len())
}

func TestSnapshot_IsACopy(t *testing.T) {
	a := newAggregator(t)
	a.Begin()
	require.NoError(t, a.Observe(1, 0))

	snap := a.Snapshot()
	snap.Force[0] = 99
	assert.Equal(t, 1.0, a.Snapshot().Force[0])
}

func TestSnapshot_ConsistentUnderConcurrency(t *testing.T) {
	a := newAggregator(t)
	a.Begin()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			_ = a.Observe(float64(i), float64(i)*0.01)
		}
	}()

	for i := 0; i < 200; i++ {
		s := a.Snapshot()
		n := len(s.Force)
		if len(s.Displacement) != n || len(s.Stress) != n || len(s.Strain) != n {
			t.Fatalf("inconsistent snapshot lengths %d/%d/%d/%d",
				n, len(s.Displacement), len(s.Stress), len(s.Strain))
		}
	}
	wg.Wait()
	assert.Equal(t, 2000, a.Len())
}

func TestProperties(t *testing.T) {
	a := newAggregator(t)
	a.Begin()

	_, err := a.Properties()
	assert.ErrorIs(t, err, errors.ErrDegenerateData)

	require.NoError(t, a.Observe(0, 0))
	require.NoError(t, a.Observe(1000, 0.1))
	require.NoError(t, a.Observe(2000, 0.3))

	props, err := a.Properties()
	require.NoError(t, err)
	assert.InDelta(t, (2000.0-1000.0)/78.5398/0.004, props.YoungsModulus, 1e-2)
	assert.InDelta(t, 78.5398, props.Area, 1e-4)
}

func TestMetrics(t *testing.T) {
	m := metric.NewMetrics()
	a, err := New(specimen.Rectangular(2, 5, 25), Deps{Metrics: m})
	require.NoError(t, err)

	a.Begin()
	require.NoError(t, a.Observe(1, 0))
	require.NoError(t, a.Observe(2, 0.1))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Sessions))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.SamplesObserved))
}
