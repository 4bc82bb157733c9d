// Package scheduler runs the server's periodic jobs.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/imagegen"
	"github.com/lox/hazardmap/internal/status"
	"github.com/lox/hazardmap/internal/viewer"
)

// Janitor deletes audit rows past retention.
type Janitor interface {
	CleanupOldFetchRuns(cutoff time.Time) (int64, error)
	CleanupOldRawPayloads(cutoff time.Time) (int64, error)
}

// TilePruner removes expired disk tiles.
type TilePruner interface {
	Prune() (int, error)
}

type Config struct {
	Monitor        *status.Monitor
	StatusInterval time.Duration
	Sessions       *viewer.Manager
	Janitor        Janitor
	Retention      time.Duration
	Tiles          TilePruner
	Banners        *imagegen.Banners
	Forecasts      viewer.StatisticsSource
	Clock          clockwork.Clock
}

type Scheduler struct {
	cfg             Config
	clock           clockwork.Clock
	sweepInterval   time.Duration
	cleanupInterval time.Duration
	bannerInterval  time.Duration
}

func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Minute
	}
	sweep := time.Hour
	if cfg.Sessions != nil {
		sweep = cfg.Sessions.TTL() / 4
		if sweep < time.Minute {
			sweep = time.Minute
		}
	}
	return &Scheduler{
		cfg:             cfg,
		clock:           cfg.Clock,
		sweepInterval:   sweep,
		cleanupInterval: 6 * time.Hour,
		bannerInterval:  time.Hour,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.checkStatus(ctx)
	s.cleanup()
	s.checkBanner(ctx)

	statusTicker := s.clock.NewTicker(s.cfg.StatusInterval)
	sweepTicker := s.clock.NewTicker(s.sweepInterval)
	cleanupTicker := s.clock.NewTicker(s.cleanupInterval)
	bannerTicker := s.clock.NewTicker(s.bannerInterval)
	defer statusTicker.Stop()
	defer sweepTicker.Stop()
	defer cleanupTicker.Stop()
	defer bannerTicker.Stop()

	log.Printf("scheduler: status every %v, session sweep every %v", s.cfg.StatusInterval, s.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-statusTicker.Chan():
			s.checkStatus(ctx)
		case <-sweepTicker.Chan():
			s.sweepSessions()
		case <-cleanupTicker.Chan():
			s.cleanup()
		case <-bannerTicker.Chan():
			s.checkBanner(ctx)
		}
	}
}

func (s *Scheduler) checkStatus(ctx context.Context) {
	if s.cfg.Monitor == nil {
		return
	}
	s.cfg.Monitor.Check(ctx)
}

func (s *Scheduler) sweepSessions() {
	if s.cfg.Sessions == nil {
		return
	}
	if n := s.cfg.Sessions.Sweep(); n > 0 {
		log.Printf("scheduler: evicted %d idle sessions", n)
	}
}

func (s *Scheduler) cleanup() {
	if s.cfg.Janitor != nil && s.cfg.Retention > 0 {
		cutoff := s.clock.Now().Add(-s.cfg.Retention)
		if n, err := s.cfg.Janitor.CleanupOldFetchRuns(cutoff); err != nil {
			log.Printf("scheduler: cleanup fetch runs: %v", err)
		} else if n > 0 {
			log.Printf("scheduler: deleted %d old fetch runs", n)
		}
		if n, err := s.cfg.Janitor.CleanupOldRawPayloads(cutoff); err != nil {
			log.Printf("scheduler: cleanup raw payloads: %v", err)
		} else if n > 0 {
			log.Printf("scheduler: deleted %d old raw payloads", n)
		}
	}
	if s.cfg.Tiles != nil {
		if n, err := s.cfg.Tiles.Prune(); err != nil {
			log.Printf("scheduler: prune tiles: %v", err)
		} else if n > 0 {
			log.Printf("scheduler: pruned %d expired tiles", n)
		}
	}
}

// checkBanner pre-generates the banner for the newest forecast's hazard level.
func (s *Scheduler) checkBanner(ctx context.Context) {
	if s.cfg.Banners == nil || !s.cfg.Banners.Enabled() || s.cfg.Forecasts == nil {
		return
	}
	level, ok, err := LatestLevel(ctx, s.cfg.Forecasts)
	if err != nil {
		log.Printf("scheduler: latest hazard level: %v", err)
		return
	}
	if !ok {
		return
	}
	if _, err := s.cfg.Banners.Ensure(ctx, level); err != nil {
		log.Printf("scheduler: generate %s banner: %v", level.Slug(), err)
	}
}

// LatestLevel classifies the newest forecast with statistics.
func LatestLevel(ctx context.Context, src viewer.StatisticsSource) (hazard.Level, bool, error) {
	date, stats, err := viewer.LatestStatistics(ctx, src)
	if err != nil || date == "" {
		return 0, false, err
	}
	p, ok := hazard.Headline(stats)
	if !ok {
		return 0, false, nil
	}
	return hazard.Classify(p), true, nil
}
