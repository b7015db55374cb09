// Package dashboard aggregates per-resource counts for the operator home page.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"wa-dashboard/internal/metrics"
)

// Source is the slice of a resource table the aggregator needs.
type Source interface {
	Resource() string
	Count(ctx context.Context, ownerID string) (int, error)
	LatestCreatedAt(ctx context.Context, ownerID string) (*time.Time, error)
}

// Tile summarises one resource. Available is false when a sub-query failed;
// Count and LatestCreatedAt are then zero / nil.
type Tile struct {
	Kind            string     `json:"kind"`
	Count           int        `json:"count"`
	LatestCreatedAt *time.Time `json:"latest_created_at,omitempty"`
	Available       bool       `json:"available"`
}

// Aggregator runs the sub-queries of every source concurrently.
type Aggregator struct {
	sources []Source
	pool    *ants.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Aggregator backed by a pool of the given size.
func New(sources []Source, workers int, logger *slog.Logger, m *metrics.Metrics) (*Aggregator, error) {
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		logger.Error("dashboard task panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create dashboard pool: %w", err)
	}
	return &Aggregator{
		sources: sources,
		pool:    pool,
		logger:  logger.With("component", "dashboard"),
		metrics: m,
	}, nil
}

// Close releases the worker pool.
func (a *Aggregator) Close() {
	a.pool.Release()
}

// Summarize returns one tile per source, in source order. It never fails:
// each failed sub-query is logged and reported through Tile.Available.
func (a *Aggregator) Summarize(ctx context.Context, ownerID string) []Tile {
	tiles := make([]Tile, len(a.sources))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i, src := range a.sources {
		tiles[i] = Tile{Kind: src.Resource(), Available: true}

		a.submit(&wg, func() {
			n, err := src.Count(ctx, ownerID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.fail(&tiles[i], "count", err)
				return
			}
			tiles[i].Count = n
		})
		a.submit(&wg, func() {
			latest, err := src.LatestCreatedAt(ctx, ownerID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.fail(&tiles[i], "latest", err)
				return
			}
			tiles[i].LatestCreatedAt = latest
		})
	}
	wg.Wait()

	for i := range tiles {
		if !tiles[i].Available {
			tiles[i].Count = 0
			tiles[i].LatestCreatedAt = nil
		}
	}
	return tiles
}

// submit runs task on the pool, or inline when the pool refuses it.
func (a *Aggregator) submit(wg *sync.WaitGroup, task func()) {
	wg.Add(1)
	run := func() {
		defer wg.Done()
		task()
	}
	if err := a.pool.Submit(run); err != nil {
		a.logger.Warn("pool rejected dashboard task, running inline", "error", err)
		run()
	}
}

func (a *Aggregator) fail(tile *Tile, query string, err error) {
	tile.Available = false
	a.logger.Error("dashboard sub-query failed", "kind", tile.Kind, "query", query, "error", err)
	if a.metrics != nil {
		a.metrics.DashboardFailures.WithLabelValues(tile.Kind, query).Inc()
	}
}
