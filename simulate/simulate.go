// Package simulate emulates the test rig: it synthesizes a stress-strain
// curve, pushes every point through the ADC codec and writes the decoded
// samples to a transport as wire records at a device-like pace.
package simulate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/7-Dany/Stress-Strain/codec"
	"github.com/7-Dany/Stress-Strain/curve"
	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/transport"
	"github.com/7-Dany/Stress-Strain/types"
)

// DefaultPace is the delay between two records
const DefaultPace = 20 * time.Millisecond

// Deps holds runtime dependencies for a Simulator
type Deps struct {
	Metrics *metric.Metrics
	Logger  *slog.Logger
	// Pace between records. Zero means DefaultPace, negative disables pacing.
	Pace time.Duration
}

// Report summarizes a run
type Report struct {
	Total              int
	Sent               int64
	PressureClamps     int
	DisplacementClamps int
}

// Saturated reports whether any sample was clipped
func (r Report) Saturated() bool {
	return r.PressureClamps > 0 || r.DisplacementClamps > 0
}

// Simulator writes one run at a time to a sink. It does not close the sink.
type Simulator struct {
	codec   *codec.Codec
	sink    transport.Sink
	pace    time.Duration
	metrics *metric.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	running  atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
	err      error
	report   Report
	sent     atomic.Int64
}

// New creates an idle simulator
func New(c *codec.Codec, sink transport.Sink, deps Deps) (*Simulator, error) {
	if c == nil {
		return nil, errors.Invalidf("simulate", "New", "codec is required")
	}
	if sink == nil {
		return nil, errors.Invalidf("simulate", "New", "sink is required")
	}

	pace := deps.Pace
	if pace == 0 {
		pace = DefaultPace
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "simulate")
	}

	s := &Simulator{
		codec:   c,
		sink:    sink,
		pace:    pace,
		metrics: deps.Metrics,
		logger:  logger,
		done:    make(chan struct{}),
	}
	close(s.done)
	return s, nil
}

// Start synthesizes the curve for p and m, projects it onto g and streams it
// in the background. Invalid parameters or geometry fail here, before any
// record is written.
func (s *Simulator) Start(ctx context.Context, p curve.Params, m curve.Model, g specimen.Geometry) error {
	c, err := curve.Synthesize(p, m)
	if err != nil {
		return errors.Wrap(err, "simulate", "Start", "synthesize curve")
	}
	samples, err := c.Project(g)
	if err != nil {
		return errors.Wrap(err, "simulate", "Start", "project curve")
	}

	codes := make([]codec.Codes, len(samples))
	for i, sample := range samples {
		codes[i] = s.codec.EncodeSample(sample)
	}

	s.logger.Info("Curve synthesized",
		"points", c.Len(),
		"yield_strain", c.YieldStrain,
		"ultimate_strain", c.UltimateStrain,
		"fracture_strain", c.FractureStrain,
		"specimen", g.String())
	return s.start(ctx, codes)
}

// StartRamp streams n dummy readings where both channels carry code i for
// i = 0..n-1. Codes above the ADC range saturate.
func (s *Simulator) StartRamp(ctx context.Context, n int) error {
	if n <= 0 {
		return errors.Invalidf("simulate", "StartRamp", "ramp length must be positive, got %d", n)
	}
	return s.start(ctx, Ramp(n, s.codec.Calibration().ADCMax))
}

// Ramp returns n code pairs counting up from zero, clipped at adcMax.
func Ramp(n, adcMax int) []codec.Codes {
	codes := make([]codec.Codes, n)
	for i := range codes {
		v, clipped := i, false
		if v > adcMax {
			v, clipped = adcMax, true
		}
		codes[i] = codec.Codes{
			Pressure:            v,
			Displacement:        v,
			PressureClamped:     clipped,
			DisplacementClamped: clipped,
		}
	}
	return codes
}

func (s *Simulator) start(ctx context.Context, codes []codec.Codes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.Wrap(errors.ErrAlreadyStarted, "simulate", "Start", "start run")
	}

	report := Report{Total: len(codes)}
	for _, c := range codes {
		if c.PressureClamped {
			report.PressureClamps++
			s.metrics.RecordSaturation(string(types.ChannelPressure))
		}
		if c.DisplacementClamped {
			report.DisplacementClamps++
			s.metrics.RecordSaturation(string(types.ChannelDisplacement))
		}
	}
	if report.PressureClamps > 0 {
		s.logger.Warn("Pressure channel saturated, samples clipped to full scale",
			"clipped", report.PressureClamps, "full_scale_force", s.codec.Calibration().FullScaleForce())
	}
	if report.DisplacementClamps > 0 {
		s.logger.Warn("Displacement channel saturated, samples clipped to full travel",
			"clipped", report.DisplacementClamps, "travel_mm", s.codec.Calibration().PotTravelMM)
	}

	s.report = report
	s.sent.Store(0)
	s.err = nil
	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.run(ctx, codes, s.shutdown, s.done)
	return nil
}

func (s *Simulator) run(ctx context.Context, codes []codec.Codes, shutdown, done chan struct{}) {
	var runErr error
	defer func() {
		s.mu.Lock()
		s.err = runErr
		s.running.Store(false)
		s.mu.Unlock()
		close(done)
	}()

	// runCtx also ends on Stop
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	var limiter *rate.Limiter
	if s.pace > 0 {
		limiter = rate.NewLimiter(rate.Every(s.pace), 1)
	}

	buf := make([]byte, 0, 48)
	for i, code := range codes {
		if limiter != nil {
			_ = limiter.Wait(runCtx)
		}
		select {
		case <-shutdown:
			s.logEnd(shutdown)
			return
		case <-runCtx.Done():
			s.logEnd(shutdown)
			return
		default:
		}

		sample := s.codec.Decode(code)
		buf = transport.AppendRecord(buf[:0], sample)
		if _, err := s.sink.Write(buf); err != nil {
			runErr = errors.Wrap(err, "simulate", "run", "write record")
			s.logger.Error("Simulation aborted", "error", runErr, "sent", s.sent.Load())
			return
		}
		s.sent.Add(1)
		s.metrics.RecordSimulated()
		s.logger.Debug("Record sent", "index", i, "sample", sample.String(),
			"pressure_code", code.Pressure, "displacement_code", code.Displacement)
	}

	s.logger.Info("Simulation finished", "sent", s.sent.Load())
}

func (s *Simulator) logEnd(shutdown chan struct{}) {
	select {
	case <-shutdown:
		s.logger.Info("Simulation stopped", "sent", s.sent.Load())
	default:
		s.logger.Info("Simulation cancelled", "sent", s.sent.Load())
	}
}

// Stop ends the run and waits for it to exit. No-op when idle.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	shutdown, done := s.shutdown, s.done
	if s.running.Load() && shutdown != nil {
		select {
		case <-shutdown:
		default:
			close(shutdown)
		}
	}
	s.mu.Unlock()

	<-done
	return nil
}

// Done is closed when the current run exits
func (s *Simulator) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the run exits or ctx ends
func (s *Simulator) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the write error that aborted the last run, if any
func (s *Simulator) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running reports whether a run is in progress
func (s *Simulator) Running() bool {
	return s.running.Load()
}

// Report returns the summary of the current or last run
func (s *Simulator) Report() Report {
	s.mu.Lock()
	r := s.report
	s.mu.Unlock()
	r.Sent = s.sent.Load()
	return r
}
