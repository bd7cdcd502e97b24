package jobs

import (
	"context"
	"fmt"
	"time"

	"ecowing/metrics"
	"ecowing/models"
	"ecowing/sites"

	"github.com/apex/log"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 30 * time.Second

// SiteRanker produces the current top sites.
type SiteRanker interface {
	Sites(ctx context.Context, f models.Filter, limit int) ([]sites.SiteView, error)
}

// SiteBroadcaster pushes a ranking to connected clients.
type SiteBroadcaster interface {
	BroadcastSites(views []sites.SiteView)
}

// CachePurger drops expired geocode cache rows.
type CachePurger interface {
	PurgeExpiredAddresses(ctx context.Context) (int64, error)
}

// Scheduler runs the periodic snapshot and cache maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddSnapshot broadcasts the top sites on schedule, a cron expression or
// descriptor such as "@every 1m".
func (s *Scheduler) AddSnapshot(schedule string, ranker SiteRanker, bc SiteBroadcaster, limit int) error {
	if _, err := s.cron.AddFunc(schedule, SnapshotJob(ranker, bc, limit)); err != nil {
		return fmt.Errorf("failed to schedule site snapshot %q: %w", schedule, err)
	}
	log.WithField("schedule", schedule).Info("site snapshot job scheduled")
	return nil
}

// AddCachePurge removes expired geocode cache rows on schedule.
func (s *Scheduler) AddCachePurge(schedule string, purger CachePurger) error {
	if _, err := s.cron.AddFunc(schedule, CachePurgeJob(purger)); err != nil {
		return fmt.Errorf("failed to schedule cache purge %q: %w", schedule, err)
	}
	log.WithField("schedule", schedule).Info("geocode cache purge job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn("cron jobs still running at shutdown")
	}
}

func SnapshotJob(ranker SiteRanker, bc SiteBroadcaster, limit int) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		views, err := ranker.Sites(ctx, models.Filter{}, limit)
		if err != nil {
			log.WithError(err).Error("site snapshot failed")
			return
		}
		bc.BroadcastSites(views)
		metrics.LastSnapshotSeconds.Set(metrics.NowUnixSeconds())
		log.WithField("sites", len(views)).Debug("site snapshot broadcast")
	}
}

func CachePurgeJob(purger CachePurger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		n, err := purger.PurgeExpiredAddresses(ctx)
		if err != nil {
			log.WithError(err).Error("geocode cache purge failed")
			return
		}
		log.WithField("rows", n).Info("purged expired geocode cache rows")
	}
}
