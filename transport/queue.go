package transport

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/pkg/buffer"
)

const (
	queueCapacity      = 4096
	defaultReadTimeout = 100 * time.Millisecond
)

// queueSource adapts a push-based transport to the Source polling model.
// Producers Write messages into the queue, the single reader drains it.
type queueSource struct {
	queue   buffer.Buffer[[]byte]
	pending []byte
	timeout atomic.Int64

	closeOnce sync.Once
	onClose   func() error
}

func newQueueSource(registry *metric.MetricsRegistry, prefix string, onClose func() error) (*queueSource, error) {
	opts := []buffer.Option[[]byte]{buffer.WithOverflowPolicy[[]byte](buffer.Block)}
	if registry != nil {
		opts = append(opts, buffer.WithMetrics[[]byte](registry, prefix))
	}
	queue, err := buffer.NewCircularBuffer(queueCapacity, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "queueSource", "new", "create buffer")
	}

	q := &queueSource{queue: queue, onClose: onClose}
	q.timeout.Store(int64(defaultReadTimeout))
	return q, nil
}

// push copies msg into the queue, blocking while it is full.
func (q *queueSource) push(msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	return q.queue.Write(cp)
}

// finish closes the queue so the reader sees io.EOF after draining it.
func (q *queueSource) finish() {
	_ = q.queue.Close()
}

func (q *queueSource) Read(p []byte) (int, error) {
	if len(q.pending) == 0 {
		msg, ok, err := q.queue.ReadWait(time.Duration(q.timeout.Load()))
		if err != nil {
			return 0, io.EOF
		}
		if !ok {
			return 0, nil
		}
		q.pending = msg
	}
	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *queueSource) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		d = defaultReadTimeout
	}
	q.timeout.Store(int64(d))
	return nil
}

func (q *queueSource) Close() error {
	var err error
	q.closeOnce.Do(func() {
		q.finish()
		if q.onClose != nil {
			err = q.onClose()
		}
	})
	return err
}

// Pipe is an in-process transport. Records written to its sink come out of
// its source in order. Closing the sink ends the source stream.
type Pipe struct {
	src  *queueSource
	sink *pipeSink
}

// NewPipe creates a loopback pipe.
func NewPipe() *Pipe {
	src, _ := newQueueSource(nil, "", nil)
	return &Pipe{src: src, sink: &pipeSink{queue: src}}
}

// Source returns the receiving end.
func (p *Pipe) Source() Source {
	return p.src
}

// Sink returns the sending end.
func (p *Pipe) Sink() Sink {
	return p.sink
}

type pipeSink struct {
	queue  *queueSource
	closed atomic.Bool
}

func (s *pipeSink) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, errors.ErrTransportClosed
	}
	if err := s.queue.push(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *pipeSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.queue.finish()
	}
	return nil
}
