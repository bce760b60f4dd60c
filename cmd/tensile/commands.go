package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/7-Dany/Stress-Strain/analysis"
	"github.com/7-Dany/Stress-Strain/codec"
	"github.com/7-Dany/Stress-Strain/config"
	"github.com/7-Dany/Stress-Strain/curve"
	"github.com/7-Dany/Stress-Strain/ingest"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/series"
	"github.com/7-Dany/Stress-Strain/simulate"
	"github.com/7-Dany/Stress-Strain/transport"
)

// app carries the shared dependencies of every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	out      io.Writer
	// pace overrides the configured simulator pace when non-zero
	pace time.Duration
}

func newApp(cfg *config.Config, logger *slog.Logger, out io.Writer) *app {
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		out:      out,
	}
}

func (a *app) metrics() *metric.Metrics {
	return a.registry.CoreMetrics()
}

func (a *app) transportDeps(pipe *transport.Pipe) transport.Deps {
	return transport.Deps{Logger: a.logger, Registry: a.registry, Pipe: pipe}
}

func (a *app) newAggregator() (*series.Aggregator, error) {
	return series.New(a.cfg.Specimen, series.Deps{
		Metrics: a.metrics(),
		Logger:  a.logger.With("component", "series"),
	})
}

func (a *app) newStream(src transport.Source, agg *series.Aggregator, kind transport.Kind) (*ingest.Stream, error) {
	return ingest.New(src, agg, ingest.Deps{
		Metrics:     a.metrics(),
		Logger:      a.logger.With("component", "ingest"),
		Transport:   string(kind),
		ReadTimeout: a.cfg.Ingest.ReadTimeout,
	})
}

func (a *app) newSimulator(sink transport.Sink) (*simulate.Simulator, error) {
	cal, err := a.cfg.Calibration.Resolve()
	if err != nil {
		return nil, err
	}
	c, err := codec.New(cal)
	if err != nil {
		return nil, err
	}

	pace := a.cfg.Simulation.Pace
	if a.pace != 0 {
		pace = a.pace
	}
	return simulate.New(c, sink, simulate.Deps{
		Metrics: a.metrics(),
		Logger:  a.logger.With("component", "simulate"),
		Pace:    pace,
	})
}

func (a *app) startSimulator(ctx context.Context, sim *simulate.Simulator) error {
	if n := a.cfg.Simulation.Ramp; n > 0 {
		return sim.StartRamp(ctx, n)
	}
	return sim.Start(ctx, a.cfg.Material, a.cfg.Model, a.cfg.Specimen)
}

// ingest collects one session from the configured transport until the
// source ends, the stream fails or the process is interrupted.
func (a *app) ingest(ctx context.Context) error {
	agg, err := a.newAggregator()
	if err != nil {
		return err
	}

	src, err := transport.Open(ctx, a.cfg.Transport, a.transportDeps(nil))
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			a.logger.Warn("Transport close failed", "error", err)
		}
	}()

	stream, err := a.newStream(src, agg, a.cfg.Transport.Kind)
	if err != nil {
		return err
	}

	session := agg.Begin()
	if err := stream.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("Ingesting", "session", session, "transport", a.cfg.Transport.Describe())

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case <-stream.Done():
	}
	_ = stream.Stop()
	agg.End()

	if err := stream.Err(); err != nil {
		a.logger.Warn("Stream ended with error, reporting collected data", "error", err)
	}
	stats := stream.Stats()
	a.logger.Info("Ingest finished", "records", stats.Records, "bytes", stats.Bytes, "errors", stats.Errors)
	return a.report(agg)
}

// simulate streams one run to the configured transport
func (a *app) simulate(ctx context.Context) error {
	sink, err := transport.OpenSink(ctx, a.cfg.Transport, a.transportDeps(nil))
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			a.logger.Warn("Transport close failed", "error", err)
		}
	}()

	sim, err := a.newSimulator(sink)
	if err != nil {
		return err
	}
	if err := a.startSimulator(ctx, sim); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case <-sim.Done():
	}
	_ = sim.Stop()

	a.logReport(sim.Report())
	return sim.Err()
}

// demo runs the simulator and the ingest loop back to back over a pipe
func (a *app) demo(ctx context.Context) error {
	agg, err := a.newAggregator()
	if err != nil {
		return err
	}

	tcfg := a.cfg.Transport
	tcfg.Kind = transport.KindLoopback
	pipe := transport.NewPipe()

	src, err := transport.Open(ctx, tcfg, a.transportDeps(pipe))
	if err != nil {
		return err
	}
	defer src.Close()
	sink, err := transport.OpenSink(ctx, tcfg, a.transportDeps(pipe))
	if err != nil {
		return err
	}

	stream, err := a.newStream(src, agg, tcfg.Kind)
	if err != nil {
		return err
	}
	sim, err := a.newSimulator(sink)
	if err != nil {
		return err
	}

	agg.Begin()
	if err := stream.Start(ctx); err != nil {
		return err
	}
	if err := a.startSimulator(ctx, sim); err != nil {
		_ = stream.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sim.Wait(gctx)
		// closing the sink first unblocks a writer stuck on a full pipe and
		// ends the source once the pipe drains
		_ = sink.Close()
		_ = sim.Stop()
		if err != nil {
			return err
		}
		return sim.Err()
	})
	g.Go(func() error {
		// the drain timeout only starts once the producer is finished
		select {
		case <-sim.Done():
		case <-stream.Done():
		case <-gctx.Done():
		}
		waitCtx, cancel := context.WithTimeout(gctx, drainTimeout)
		defer cancel()
		err := stream.Wait(waitCtx)
		_ = stream.Stop()
		return err
	})
	err = g.Wait()
	agg.End()
	a.logReport(sim.Report())

	if err != nil && ctx.Err() == nil {
		return err
	}
	return a.report(agg)
}

// analyze extracts properties straight from the synthesized curve
func (a *app) analyze() error {
	c, err := curve.Synthesize(a.cfg.Material, a.cfg.Model)
	if err != nil {
		return err
	}

	points := c.Points()
	strain := make([]float64, len(points))
	stress := make([]float64, len(points))
	for i, p := range points {
		strain[i] = p.Strain
		stress[i] = p.Stress
	}

	start := time.Now()
	props, err := analysis.Extract(strain, stress, a.cfg.Specimen.Area())
	a.metrics().RecordExtraction(time.Since(start))
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.out, "Specimen: %s\nPoints: %d\n", a.cfg.Specimen.String(), len(points))
	_, err = props.WriteTo(a.out)
	return err
}

func (a *app) ports() error {
	ports, err := transport.SerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(a.out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(a.out, p)
	}
	return nil
}

// report prints the specimen summary and the extracted properties
func (a *app) report(agg *series.Aggregator) error {
	snap := agg.Snapshot()
	_, _ = fmt.Fprintf(a.out, "Session: %s\nSpecimen: %s\nSamples: %d\n",
		snap.SessionID, agg.Geometry().String(), snap.Len())

	props, err := agg.Properties()
	if err != nil {
		return err
	}
	_, err = props.WriteTo(a.out)
	return err
}

func (a *app) logReport(r simulate.Report) {
	args := []any{"total", r.Total, "sent", r.Sent}
	if r.Saturated() {
		a.logger.Warn("Simulated run saturated the ADC",
			append(args, "pressure_clamps", r.PressureClamps, "displacement_clamps", r.DisplacementClamps)...)
		return
	}
	a.logger.Info("Simulated run finished", args...)
}
