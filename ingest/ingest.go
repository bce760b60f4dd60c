// Package ingest runs the background loop that reads wire records from a
// transport and feeds each sample to an observer, usually a
// series.Aggregator.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/transport"
)

// DefaultReadTimeout bounds each source read so Stop is noticed promptly.
const DefaultReadTimeout = 100 * time.Millisecond

// Observer receives one force/displacement pair per record.
type Observer interface {
	Observe(force, displacement float64) error
}

// Deps holds runtime dependencies for a Stream
type Deps struct {
	Metrics *metric.Metrics
	Logger  *slog.Logger
	// Transport labels metrics and logs, e.g. "serial"
	Transport string
	// ReadTimeout overrides DefaultReadTimeout
	ReadTimeout time.Duration
}

// Stats is a point-in-time view of a stream's data flow
type Stats struct {
	Running          bool
	Records          int64
	Bytes            int64
	Errors           int64
	RecordsPerSecond float64
	LastActivity     time.Time
}

// Stream bridges a transport.Source into an Observer. At most one loop runs
// at a time.
type Stream struct {
	source      transport.Source
	observer    Observer
	name        string
	readTimeout time.Duration
	metrics     *metric.Metrics
	logger      *slog.Logger

	mu        sync.Mutex
	running   atomic.Bool
	shutdown  chan struct{}
	done      chan struct{}
	err       error
	startTime time.Time

	records      atomic.Int64
	bytes        atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Value // time.Time
}

// New creates a stopped stream.
func New(source transport.Source, observer Observer, deps Deps) (*Stream, error) {
	if source == nil {
		return nil, errors.Invalidf("ingest", "New", "source is required")
	}
	if observer == nil {
		return nil, errors.Invalidf("ingest", "New", "observer is required")
	}

	name := deps.Transport
	if name == "" {
		name = "unknown"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "ingest", "transport", name)
	}
	timeout := deps.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	s := &Stream{
		source:      source,
		observer:    observer,
		name:        name,
		readTimeout: timeout,
		metrics:     deps.Metrics,
		logger:      logger,
	}
	s.lastActivity.Store(time.Time{})

	// a stream that never started counts as finished
	s.done = make(chan struct{})
	close(s.done)
	return s, nil
}

// Start launches the read loop. It fails with ErrAlreadyStarted while a loop
// is running. A stream whose loop has finished may be started again.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.Wrap(errors.ErrAlreadyStarted, "ingest", "Start", "start loop")
	}
	if err := s.source.SetReadTimeout(s.readTimeout); err != nil {
		return errors.WrapTransient(err, "ingest", "Start", "set read timeout")
	}

	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	s.err = nil
	s.startTime = time.Now()
	s.running.Store(true)
	s.metrics.RecordIngestActive(true)

	go s.run(ctx, s.shutdown, s.done)

	s.logger.Info("Ingest started")
	return nil
}

// Stop signals the loop and blocks until it has exited. After Stop returns
// no further Observe call happens. Stopping a stream that is not running is
// a no-op.
func (s *Stream) Stop() error {
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

// Done is closed when the current loop exits.
func (s *Stream) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the loop exits or ctx ends, and returns the loop's
// terminal error.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error that ended the last loop. A stop, cancellation or
// clean end of stream leaves it nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running reports whether the loop is active
func (s *Stream) Running() bool {
	return s.running.Load()
}

// Stats returns the current data flow counters
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	records := s.records.Load()
	last, _ := s.lastActivity.Load().(time.Time)

	var rate float64
	if !started.IsZero() {
		if uptime := time.Since(started).Seconds(); uptime > 0 {
			rate = float64(records) / uptime
		}
	}

	return Stats{
		Running:          s.running.Load(),
		Records:          records,
		Bytes:            s.bytes.Load(),
		Errors:           s.errors.Load(),
		RecordsPerSecond: rate,
		LastActivity:     last,
	}
}

func (s *Stream) run(ctx context.Context, shutdown, done chan struct{}) {
	var loopErr error
	defer func() {
		s.mu.Lock()
		s.err = loopErr
		s.running.Store(false)
		s.mu.Unlock()
		s.metrics.RecordIngestActive(false)
		close(done)
	}()

	var asm transport.Assembler
	buf := make([]byte, 4096)

	for {
		select {
		case <-shutdown:
			s.logger.Info("Ingest stopped", "records", s.records.Load())
			return
		case <-ctx.Done():
			s.logger.Info("Ingest cancelled", "records", s.records.Load())
			return
		default:
		}

		n, err := s.source.Read(buf)
		if n > 0 {
			s.bytes.Add(int64(n))
			if ferr := asm.Feed(buf[:n], s.handle); ferr != nil {
				loopErr = s.fail(ferr)
				return
			}
		}

		if err == io.EOF {
			if ferr := asm.Flush(s.handle); ferr != nil {
				loopErr = s.fail(ferr)
				return
			}
			s.logger.Info("Ingest source ended", "records", s.records.Load())
			return
		}
		if err != nil {
			select {
			case <-shutdown:
				return
			default:
			}
			loopErr = s.fail(errors.WrapTransient(err, "ingest", "run", "read source"))
			return
		}
	}
}

// handle parses one record and hands it to the observer.
func (s *Stream) handle(line string) error {
	sample, err := transport.ParseRecord(line)
	if err != nil {
		s.metrics.RecordParseError(s.name)
		return errors.Wrap(err, "ingest", "handle", "parse record")
	}

	if err := s.observer.Observe(sample.Force, sample.Displacement); err != nil {
		return errors.Wrap(err, "ingest", "handle", "observe sample")
	}

	s.records.Add(1)
	s.lastActivity.Store(time.Now())
	s.metrics.RecordIngest(s.name, len(line)+1)
	return nil
}

func (s *Stream) fail(err error) error {
	s.errors.Add(1)
	s.logger.Error("Ingest terminated", "error", err, "records", s.records.Load())
	return err
}
