// Package metrics tallies answer outcomes per period. Windows are created
// lazily on the first outcome of a period and expire after a retention
// window.
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// DefaultRetention is how long a window lives after its first outcome.
const DefaultRetention = 24 * time.Hour

// Sink receives one record per answered request.
type Sink interface {
	Record(ctx context.Context, rec models.OutcomeRecord) error
}

// Recorder is a Sink whose windows can be read back.
type Recorder interface {
	Sink
	// Window returns the counters for period. A period with no outcomes,
	// or whose window expired, reports zero counts.
	Window(ctx context.Context, period string) (*models.MetricsWindow, error)
}

func periodOf(rec models.OutcomeRecord, now time.Time) string {
	if rec.CompletedAt.IsZero() {
		return models.PeriodKey(now)
	}
	return models.PeriodKey(rec.CompletedAt)
}

// MemoryRecorder keeps windows in process memory.
type MemoryRecorder struct {
	mu        sync.Mutex
	windows   map[string]*models.MetricsWindow
	retention time.Duration
	now       func() time.Time
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an in-memory recorder. A non-positive retention
// uses DefaultRetention.
func NewMemoryRecorder(retention time.Duration) *MemoryRecorder {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryRecorder{
		windows:   make(map[string]*models.MetricsWindow),
		retention: retention,
		now:       time.Now,
	}
}

func (r *MemoryRecorder) Record(_ context.Context, rec models.OutcomeRecord) error {
	now := r.now()
	key := periodOf(rec, now)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked(now)
	w, ok := r.windows[key]
	if !ok {
		w = &models.MetricsWindow{Period: key, ExpiresAt: now.Add(r.retention)}
		r.windows[key] = w
	}
	w.Total++
	if rec.Success {
		w.Succeeded++
	} else {
		w.Failed++
	}
	return nil
}

func (r *MemoryRecorder) Window(_ context.Context, period string) (*models.MetricsWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked(r.now())
	w, ok := r.windows[period]
	if !ok {
		return &models.MetricsWindow{Period: period}, nil
	}
	snapshot := *w
	return &snapshot, nil
}

func (r *MemoryRecorder) expireLocked(now time.Time) {
	for key, w := range r.windows {
		if !now.Before(w.ExpiresAt) {
			delete(r.windows, key)
		}
	}
}

// FanOut forwards each record to every sink. A failing sink does not stop
// the others.
type FanOut struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanOut creates a fan-out over sinks; nil sinks are skipped.
func NewFanOut(logger *zap.Logger, sinks ...Sink) *FanOut {
	f := &FanOut{logger: logger.Named("metrics")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *FanOut) Record(ctx context.Context, rec models.OutcomeRecord) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Record(ctx, rec); err != nil {
			f.logger.Debug("Outcome sink failed",
				zap.String("request_id", rec.RequestID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
