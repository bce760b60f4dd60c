// Package series accumulates force/displacement samples into parallel
// force, displacement, stress and strain series for one tensile test.
package series

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/7-Dany/Stress-Strain/analysis"
	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
	"github.com/7-Dany/Stress-Strain/specimen"
	"github.com/7-Dany/Stress-Strain/types"
)

// State of an aggregator
type State int

// Aggregator states
const (
	StateIdle State = iota
	StateCollecting
)

// String returns the state name
func (s State) String() string {
	if s == StateCollecting {
		return "collecting"
	}
	return "idle"
}

// Snapshot is a consistent copy of the four series. All slices have the same length.
type Snapshot struct {
	SessionID    string
	Force        []float64
	Displacement []float64
	Stress       []float64
	Strain       []float64
}

// Len returns the number of samples in the snapshot
func (s Snapshot) Len() int {
	return len(s.Strain)
}

// Deps holds optional runtime dependencies
type Deps struct {
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Aggregator is safe for one writer and any number of concurrent readers.
type Aggregator struct {
	geometry specimen.Geometry
	area     float64
	metrics  *metric.Metrics
	logger   *slog.Logger

	mu           sync.RWMutex
	state        State
	sessionID    string
	force        []float64
	displacement []float64
	stress       []float64
	strain       []float64
}

// New returns an idle aggregator for a validated specimen
func New(g specimen.Geometry, deps Deps) (*Aggregator, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "series")
	}
	return &Aggregator{
		geometry: g,
		area:     g.Area(),
		metrics:  deps.Metrics,
		logger:   logger,
	}, nil
}

// Geometry returns the specimen the aggregator was built for
func (a *Aggregator) Geometry() specimen.Geometry {
	return a.geometry
}

// Begin clears all series, starts a new session and returns its ID
func (a *Aggregator) Begin() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.force = nil
	a.displacement = nil
	a.stress = nil
	a.strain = nil
	a.sessionID = uuid.NewString()
	a.state = StateCollecting

	a.metrics.RecordSession()
	a.logger.Info("Collection started", "session", a.sessionID, "specimen", a.geometry.String())
	return a.sessionID
}

// Observe appends one sample. Stress is force over area; strain is zero for
// the first sample and the displacement change since the first sample over
// the gauge length afterwards.
func (a *Aggregator) Observe(force, displacement float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateCollecting {
		return errors.WrapInvalid(errors.ErrNotCollecting, "series", "Observe", "append sample")
	}

	stress := force / a.area
	strain := 0.0
	if len(a.displacement) > 0 {
		strain = (displacement - a.displacement[0]) / a.geometry.GaugeLength
	}

	a.force = append(a.force, force)
	a.displacement = append(a.displacement, displacement)
	a.stress = append(a.stress, stress)
	a.strain = append(a.strain, strain)

	a.metrics.RecordSample()
	a.logger.Debug("Sample observed",
		"force", force, "displacement", displacement, "stress", stress, "strain", strain)
	return nil
}

// ObserveSample is Observe for a types.Sample
func (a *Aggregator) ObserveSample(s types.Sample) error {
	return a.Observe(s.Force, s.Displacement)
}

// End stops collecting. Accumulated data stays readable until the next Begin.
func (a *Aggregator) End() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateCollecting {
		a.logger.Info("Collection ended", "session", a.sessionID, "samples", len(a.strain))
	}
	a.state = StateIdle
}

// State returns the current state
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Len returns the number of observed samples
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.strain)
}

// Snapshot copies the four series under one read lock
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Snapshot{
		SessionID:    a.sessionID,
		Force:        append([]float64(nil), a.force...),
		Displacement: append([]float64(nil), a.displacement...),
		Stress:       append([]float64(nil), a.stress...),
		Strain:       append([]float64(nil), a.strain...),
	}
}

// Properties extracts mechanical properties from the current data
func (a *Aggregator) Properties() (analysis.Properties, error) {
	snap := a.Snapshot()

	start := time.Now()
	props, err := analysis.Extract(snap.Strain, snap.Stress, a.area)
	a.metrics.RecordExtraction(time.Since(start))
	if err != nil {
		return analysis.Properties{}, errors.Wrap(err, "series", "Properties", "extraction")
	}
	return props, nil
}
