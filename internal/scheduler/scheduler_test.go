package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/imagegen"
	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/status"
	"github.com/lox/hazardmap/internal/viewer"
)

type countingPinger struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func (p *countingPinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeJanitor struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (j *fakeJanitor) CleanupOldFetchRuns(cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cutoffs = append(j.cutoffs, cutoff)
	return 0, nil
}

func (j *fakeJanitor) CleanupOldRawPayloads(time.Time) (int64, error) {
	return 0, nil
}

type fakeForecasts struct {
	files    map[string]models.FileInfo
	stats    map[string]*models.Statistics
	filesErr error
}

func (f *fakeForecasts) Files(context.Context) (map[string]models.FileInfo, error) {
	return f.files, f.filesErr
}

func (f *fakeForecasts) Statistics(_ context.Context, tif string) (*models.Statistics, error) {
	return f.stats[tif], nil
}

func (f *fakeForecasts) Bounds(context.Context, string) (models.Bounds, error) {
	return models.Bounds{}, nil
}

func (f *fakeForecasts) Countries(context.Context) ([]models.Country, error) {
	return nil, nil
}

func (f *fakeForecasts) Forecast(context.Context, string, string) (*models.ForecastPlot, error) {
	return nil, errors.New("unused")
}

type recordingGenerator struct {
	mu     sync.Mutex
	levels []hazard.Level
}

func (g *recordingGenerator) Generate(_ context.Context, level hazard.Level) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels = append(g.levels, level)
	return []byte("png"), nil
}

func p(v float64) *float64 { return &v }

func TestLatestLevel(t *testing.T) {
	src := &fakeForecasts{
		files: map[string]models.FileInfo{
			"2024-05-01": {FileName: "f1.tif"},
			"2024-05-02": {FileName: "f2.tif"},
		},
		stats: map[string]*models.Statistics{
			"f1.tif": {Percentile98: p(0.1)},
			"f2.tif": {Percentile98: p(0.8)},
		},
	}
	level, ok, err := LatestLevel(context.Background(), src)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hazard.High, level)

	_, ok, err = LatestLevel(context.Background(), &fakeForecasts{files: map[string]models.FileInfo{}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = LatestLevel(context.Background(), &fakeForecasts{filesErr: errors.New("down")})
	assert.Error(t, err)
}

func TestScheduler_RunsJobs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pinger := &countingPinger{}
	janitor := &fakeJanitor{}
	gen := &recordingGenerator{}
	src := &fakeForecasts{
		files: map[string]models.FileInfo{"2024-05-01": {FileName: "f1.tif"}},
		stats: map[string]*models.Statistics{"f1.tif": {Percentile98: p(0.6)}},
	}
	sessions := viewer.NewManager(context.Background(), viewer.ManagerConfig{
		Backend: src,
		Options: viewer.Options{View: viewer.ViewState{Basemap: "light", Opacity: 0.55}},
		Clock:   clock,
		TTL:     time.Hour,
	})
	sessions.GetOrCreate("")

	s := New(Config{
		Monitor:        status.NewMonitor(pinger, nil, clock),
		StatusInterval: 5 * time.Minute,
		Sessions:       sessions,
		Janitor:        janitor,
		Retention:      24 * time.Hour,
		Banners:        imagegen.NewBanners(gen, imagegen.NewCache(t.TempDir(), time.Hour)),
		Forecasts:      src,
		Clock:          clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 4))
	assert.Equal(t, 1, pinger.count())
	gen.mu.Lock()
	assert.Equal(t, []hazard.Level{hazard.Moderate}, gen.levels)
	gen.mu.Unlock()
	janitor.mu.Lock()
	require.Len(t, janitor.cutoffs, 1)
	assert.Equal(t, clock.Now().Add(-24*time.Hour), janitor.cutoffs[0])
	janitor.mu.Unlock()

	clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool { return pinger.count() == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(2 * time.Hour)
	require.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
