package ingest

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/series"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/testutil"
	"github.com/7-Dany/Stress-Strain/transport"
)

func newStream(t *testing.T, src transport.Source, obs Observer) *Stream {
	t.Helper()
	s, err := New(src, obs, Deps{Transport: "mock", ReadTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	return s
}

func waitDone(t *testing.T, s *Stream) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "stream did not finish")
	return err
}

func TestNew_RequiresSourceAndObserver(t *testing.T) {
	_, err := New(nil, &testutil.MockObserver{}, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = New(testutil.NewMockSource(), nil, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestStream_ReadsUntilEOF(t *testing.T) {
	src := testutil.NewMockSource(testutil.Records)
	obs := &testutil.MockObserver{}
	s := newStream(t, src, obs)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, waitDone(t, s))

	assert.Equal(t, [][2]float64{{1000, 0.1}, {2000, 0.2}, {3000, 0.3}}, obs.Pairs())
	assert.False(t, s.Running())

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Records)
	assert.Equal(t, int64(len(testutil.Records)), stats.Bytes)
	assert.Zero(t, stats.Errors)
	assert.False(t, stats.LastActivity.IsZero())
}

func TestStream_SkipsBlankLines(t *testing.T) {
	src := testutil.NewMockSource("1,2\n\r\n", "\n  \n3,4\n")
	obs := &testutil.MockObserver{}
	s := newStream(t, src, obs)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, waitDone(t, s))

	assert.Equal(t, [][2]float64{{1, 2}, {3, 4}}, obs.Pairs())
	assert.Equal(t, int64(2), s.Stats().Records)
	assert.Zero(t, s.Stats().Errors)
}

func TestStream_ReassemblesSplitRecords(t *testing.T) {
	src := testutil.NewMockSource(testutil.SplitRecords...)
	obs := &testutil.MockObserver{}
	s := newStream(t, src, obs)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, waitDone(t, s))
	assert.Equal(t, 3, obs.Count())
}

func TestStream_FlushesUnterminatedRecord(t *testing.T) {
	src := testutil.NewMockSource("1,2\n3,4")
	obs := &testutil.MockObserver{}
	s := newStream(t, src, obs)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, waitDone(t, s))
	assert.Equal(t, [][2]float64{{1, 2}, {3, 4}}, obs.Pairs())
}

func TestStream_ParseErrorTerminates(t *testing.T) {
	for _, bad := range []string{"1000", "1000,0.1,5", "abc,0.1"} {
		t.Run(bad, func(t *testing.T) {
			src := testutil.NewMockSource(testutil.JoinRecords("1,2", bad, "3,4"))
			obs := &testutil.MockObserver{}
			m := metric.NewMetrics()
			s, err := New(src, obs, Deps{Metrics: m, Transport: "mock", ReadTimeout: 5 * time.Millisecond})
			require.NoError(t, err)

			require.NoError(t, s.Start(context.Background()))
			err = waitDone(t, s)
			require.Error(t, err)

			var pe *errors.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, bad, pe.Record)
			assert.True(t, errors.IsInvalid(err))
			assert.Equal(t, err, s.Err())

			assert.Equal(t, 1, obs.Count(), "records after the bad one must not be observed")
			assert.Equal(t, int64(1), s.Stats().Errors)
			assert.Equal(t, 1.0, promtest.ToFloat64(m.ParseErrors.WithLabelValues("mock")))
			assert.Equal(t, 1.0, promtest.ToFloat64(m.RecordsIngested.WithLabelValues("mock")))
		})
	}
}

func TestStream_ObserverErrorTerminates(t *testing.T) {
	src := testutil.NewMockSource(testutil.Records)
	obs := &testutil.MockObserver{FailAfter: 2}
	s := newStream(t, src, obs)

	require.NoError(t, s.Start(context.Background()))
	err := waitDone(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrMockObserve)
	assert.Equal(t, 2, obs.Count())
}

func TestStream_ReadErrorTerminates(t *testing.T) {
	src := testutil.NewMockSource()
	src.ReadErr = stderrors.New("device unplugged")
	s := newStream(t, src, &testutil.MockObserver{})

	require.NoError(t, s.Start(context.Background()))
	err := waitDone(t, s)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestStream_StartTwiceRejected(t *testing.T) {
	src := testutil.NewMockSource().HoldOpen()
	s := newStream(t, src, &testutil.MockObserver{})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
	assert.True(t, s.Running())
}

func TestStream_StopIsIdempotentAndJoins(t *testing.T) {
	src := testutil.NewMockSource(testutil.Records).HoldOpen()
	obs := &testutil.MockObserver{}
	s := newStream(t, src, obs)

	// never started
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start(context.Background()))
	testutil.Eventually(t, time.Second, func() bool { return obs.Count() == 3 }, "three records observed")

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop returned")
	}
	require.NoError(t, s.Stop())
	assert.NoError(t, s.Err())

	// nothing is observed once Stop has returned
	src.Push("4000,0.4\n")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, obs.Count())
}

func TestStream_Restart(t *testing.T) {
	src := testutil.NewMockSource("1,1\n").HoldOpen()
	obs := &testutil.MockObserver{}
	s := newStream(t, src, obs)

	require.NoError(t, s.Start(context.Background()))
	testutil.Eventually(t, time.Second, func() bool { return obs.Count() == 1 }, "first record")
	require.NoError(t, s.Stop())

	src.Push("2,2\n")
	require.NoError(t, s.Start(context.Background()))
	testutil.Eventually(t, time.Second, func() bool { return obs.Count() == 2 }, "second record")
	require.NoError(t, s.Stop())
}

func TestStream_ContextCancel(t *testing.T) {
	src := testutil.NewMockSource().HoldOpen()
	s := newStream(t, src, &testutil.MockObserver{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.NoError(t, waitDone(t, s))
	assert.False(t, s.Running())
}

func TestStream_FeedsAggregator(t *testing.T) {
	g := specimen.Rounded(10, 50)
	agg, err := series.New(g, series.Deps{})
	require.NoError(t, err)
	agg.Begin()

	src := testutil.NewMockSource(testutil.JoinRecords("0,0", "1000,0.1", "2000,0.3"))
	s := newStream(t, src, agg)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, waitDone(t, s))
	agg.End()

	snap := agg.Snapshot()
	require.Equal(t, 3, snap.Len())
	wantStress := []float64{0, 12.732395, 25.464791}
	wantStrain := []float64{0, 0.002, 0.006}
	for i := range wantStress {
		assert.InDelta(t, wantStress[i], snap.Stress[i], 1e-5)
		assert.InDelta(t, wantStrain[i], snap.Strain[i], 1e-12)
	}
}

func TestStream_ObserveOutsideSessionFails(t *testing.T) {
	agg, err := series.New(specimen.Rounded(10, 50), series.Deps{})
	require.NoError(t, err)

	s := newStream(t, testutil.NewMockSource(testutil.Records), agg)
	require.NoError(t, s.Start(context.Background()))
	err = waitDone(t, s)
	assert.ErrorIs(t, err, errors.ErrNotCollecting)
	assert.Zero(t, agg.Len())
}
