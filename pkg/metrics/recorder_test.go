package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

var day = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func outcome(success bool, at time.Time) models.OutcomeRecord {
	return models.OutcomeRecord{RequestID: "r", Success: success, CompletedAt: at}
}

func TestMemoryRecorder_ConcurrentConsistency(t *testing.T) {
	r := NewMemoryRecorder(time.Hour)
	r.now = func() time.Time { return day }

	const succeeded, failed = 137, 63
	var wg sync.WaitGroup
	for i := 0; i < succeeded+failed; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			assert.NoError(t, r.Record(context.Background(), outcome(success, day)))
		}(i < succeeded)
	}
	wg.Wait()

	w, err := r.Window(context.Background(), "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(succeeded+failed), w.Total)
	assert.Equal(t, int64(succeeded), w.Succeeded)
	assert.Equal(t, int64(failed), w.Failed)
	assert.Equal(t, day.Add(time.Hour), w.ExpiresAt)
}

func TestMemoryRecorder_WindowsPerPeriod(t *testing.T) {
	r := NewMemoryRecorder(0)
	r.now = func() time.Time { return day }

	require.NoError(t, r.Record(context.Background(), outcome(true, day)))
	require.NoError(t, r.Record(context.Background(), outcome(false, day.Add(-24*time.Hour))))

	today, err := r.Window(context.Background(), "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), today.Succeeded)

	yesterday, err := r.Window(context.Background(), "2026-03-13")
	require.NoError(t, err)
	assert.Equal(t, int64(1), yesterday.Failed)
}

func TestMemoryRecorder_Expiry(t *testing.T) {
	now := day
	r := NewMemoryRecorder(DefaultRetention)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Record(context.Background(), outcome(true, day)))
	now = day.Add(DefaultRetention - time.Second)
	w, err := r.Window(context.Background(), "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Total)

	now = day.Add(DefaultRetention)
	w, err = r.Window(context.Background(), "2026-03-14")
	require.NoError(t, err)
	assert.Zero(t, w.Total)
	assert.Equal(t, "2026-03-14", w.Period)
}

func TestMemoryRecorder_WindowIsSnapshot(t *testing.T) {
	r := NewMemoryRecorder(0)
	require.NoError(t, r.Record(context.Background(), outcome(true, time.Time{})))

	w, err := r.Window(context.Background(), models.PeriodKey(time.Now()))
	require.NoError(t, err)
	w.Total = 100

	again, err := r.Window(context.Background(), models.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Total)
}

type failingSink struct{ calls int }

func (s *failingSink) Record(context.Context, models.OutcomeRecord) error {
	s.calls++
	return errors.New("backend down")
}

func TestFanOut(t *testing.T) {
	mem := NewMemoryRecorder(0)
	bad := &failingSink{}
	f := NewFanOut(zap.NewNop(), bad, nil, mem)

	err := f.Record(context.Background(), outcome(false, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.Equal(t, 1, bad.calls)

	w, err := mem.Window(context.Background(), models.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Failed)
}
