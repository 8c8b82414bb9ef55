// Package collector runs the periodic collection loop: it fans out to every
// configured platform client, normalizes what comes back, and persists
// channels and snapshots. A platform failing never aborts the cycle for the
// others.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/streamlens/platform"
	"github.com/onnwee/streamlens/store"
	"github.com/onnwee/streamlens/telemetry"
)

// Store is the subset of the persistence layer the collector needs.
type Store interface {
	UpsertChannel(ctx context.Context, obs platform.Observation) (store.Channel, error)
	AppendSnapshot(ctx context.Context, channelID int64, obs platform.Observation) (store.Snapshot, error)
}

type Collector struct {
	Store      Store
	Clients    []platform.Client
	Interval   time.Duration
	MaxStreams int
}

func New(st Store, clients []platform.Client, interval time.Duration, maxStreams int) *Collector {
	return &Collector{Store: st, Clients: clients, Interval: interval, MaxStreams: maxStreams}
}

// CycleResult summarizes one collection cycle.
type CycleResult struct {
	mu        sync.Mutex
	Collected map[string]int // platform -> snapshots written
	Failed    map[string]error
}

func (r *CycleResult) addCollected(platform string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Collected[platform] = n
}

func (r *CycleResult) addFailed(platform string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[platform] = err
}

// Total returns the number of snapshots written across all platforms.
func (r *CycleResult) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Collected {
		n += c
	}
	return n
}

// Start runs the collection loop until ctx is canceled. The first cycle runs
// immediately; each subsequent cycle starts Interval after the previous one
// finished.
func (c *Collector) Start(ctx context.Context) {
	log := slog.With(slog.String("component", "collector"))
	log.Info("collection loop starting", slog.Duration("interval", c.Interval), slog.Int("max_streams", c.MaxStreams))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("collection loop stopping")
			return
		case <-timer.C:
		}
		start := time.Now()
		res := c.RunCycle(ctx)
		if ctx.Err() != nil {
			log.Info("collection loop stopping")
			return
		}
		log.Info("collection cycle finished",
			slog.Int("snapshots", res.Total()),
			slog.Int("platform_failures", len(res.Failed)),
			slog.Duration("duration", time.Since(start)))
		timer.Reset(c.Interval)
	}
}

// RunCycle collects from every platform concurrently and returns the per
// platform outcome. Errors are contained per platform and per observation.
func (c *Collector) RunCycle(ctx context.Context) *CycleResult {
	telemetry.Init()
	ctx, span := telemetry.StartSpan(ctx, "collector", "collection.cycle")
	defer span.End()

	res := &CycleResult{Collected: make(map[string]int), Failed: make(map[string]error)}
	start := time.Now()
	// Deliberately not errgroup.WithContext: one platform failing must not
	// cancel the siblings.
	g := new(errgroup.Group)
	for _, client := range c.Clients {
		g.Go(func() error {
			c.collectPlatform(ctx, client, res)
			return nil
		})
	}
	_ = g.Wait()

	if telemetry.CollectionCycles != nil {
		telemetry.CollectionCycles.Inc()
	}
	if telemetry.CycleDuration != nil {
		telemetry.CycleDuration.Observe(time.Since(start).Seconds())
	}
	return res
}

func (c *Collector) collectPlatform(ctx context.Context, client platform.Client, res *CycleResult) {
	name := client.Name()
	log := slog.With(slog.String("component", "collector"), slog.String("platform", name))

	obs, err := client.ListLiveStreams(ctx, c.MaxStreams)
	if err != nil {
		log.Error("platform collection failed", slog.Any("err", err))
		telemetry.ObservePlatformFailure(name)
		res.addFailed(name, err)
		return
	}
	telemetry.ObserveStreams(name, len(obs))

	stored := 0
	for _, o := range obs {
		if ctx.Err() != nil {
			log.Info("abandoning batch on shutdown", slog.Int("stored", stored), slog.Int("remaining", len(obs)-stored))
			break
		}
		ch, err := c.Store.UpsertChannel(ctx, o)
		if err != nil {
			log.Warn("failed to upsert channel", slog.String("channel_id", o.ChannelID), slog.Any("err", err))
			continue
		}
		if _, err := c.Store.AppendSnapshot(ctx, ch.ID, o); err != nil {
			log.Warn("failed to append snapshot", slog.String("channel_id", o.ChannelID), slog.Any("err", err))
			continue
		}
		telemetry.ObserveSnapshot()
		stored++
	}
	res.addCollected(name, stored)
	log.Info("platform collected", slog.Int("observed", len(obs)), slog.Int("stored", stored))
}
