package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecowing/models"
	"ecowing/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRanker struct {
	views []sites.SiteView
	err   error
	limit int
}

func (f *fakeRanker) Sites(_ context.Context, _ models.Filter, limit int) ([]sites.SiteView, error) {
	f.limit = limit
	return f.views, f.err
}

type fakeBroadcaster struct {
	got [][]sites.SiteView
}

func (f *fakeBroadcaster) BroadcastSites(v []sites.SiteView) { f.got = append(f.got, v) }

type fakePurger struct {
	calls int
	err   error
}

func (f *fakePurger) PurgeExpiredAddresses(context.Context) (int64, error) {
	f.calls++
	return 3, f.err
}

func TestSnapshotJob(t *testing.T) {
	ranker := &fakeRanker{views: []sites.SiteView{{Key: "Pier A:22.3000:114.1700", Location: "Pier A", TotalItems: 8}}}
	bc := &fakeBroadcaster{}

	SnapshotJob(ranker, bc, 5)()
	require.Len(t, bc.got, 1)
	assert.Equal(t, "Pier A", bc.got[0][0].Location)
	assert.Equal(t, 5, ranker.limit)

	ranker.err = errors.New("db down")
	SnapshotJob(ranker, bc, 5)()
	assert.Len(t, bc.got, 1)
}

func TestCachePurgeJob(t *testing.T) {
	p := &fakePurger{}
	CachePurgeJob(p)()
	assert.Equal(t, 1, p.calls)

	p.err = errors.New("lock wait timeout")
	CachePurgeJob(p)()
	assert.Equal(t, 2, p.calls)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.AddSnapshot("every minute", &fakeRanker{}, &fakeBroadcaster{}, 10))
	assert.Error(t, s.AddCachePurge("@sometimes", &fakePurger{}))
	assert.NoError(t, s.AddCachePurge("@daily", &fakePurger{}))
}

func TestSchedulerRuns(t *testing.T) {
	s := NewScheduler()
	bc := &fakeBroadcaster{}
	done := make(chan struct{}, 1)
	ranker := &fakeRanker{}
	require.NoError(t, s.AddSnapshot("@every 1s", ranker, bc, 10))
	require.NoError(t, s.AddCachePurge("@every 1s", purgeSignal{done}))

	s.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("cache purge job did not run")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

type purgeSignal struct {
	done chan struct{}
}

func (p purgeSignal) PurgeExpiredAddresses(context.Context) (int64, error) {
	select {
	case p.done <- struct{}{}:
	default:
	}
	return 0, nil
}
