package metrics

import (
	"context"
	"fmt"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/narstation/narstation/internal/config"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	SkipReasonUnclassified = "unclassified"
	SkipReasonNoRelease    = "no_release"
	SkipReasonNoAsset      = "no_asset"
	SkipReasonNoReadme     = "no_readme"
)

var (
	CounterGenerations  = stats.Int64("generations", "Number of listing generations", "1")
	CounterEntries      = stats.Int64("entries", "Number of listing entries rendered", "1")
	CounterSkippedItems = stats.Int64("skipped_items", "Number of search results without a listing entry", "1")
	CounterFetches      = stats.Int64("fetches", "Number of upstream fetches", "1")
	CounterCacheHit     = stats.Int64("cache_hits", "Number of cache hits", "1")
	CounterCacheMiss    = stats.Int64("cache_misses", "Number of cache misses", "1")

	TagReason   = tag.MustNewKey("reason")
	TagStatus   = tag.MustNewKey("status")
	TagCacheKey = tag.MustNewKey("cache_key")
)

var views = []*view.View{
	{
		Name:        "generations",
		Measure:     CounterGenerations,
		Description: "Number of listing generations",
		TagKeys:     []tag.Key{TagStatus},
		Aggregation: view.Count(),
	},
	{
		Name:        "entries",
		Measure:     CounterEntries,
		Description: "Number of listing entries rendered",
		Aggregation: view.Sum(),
	},
	{
		Name:        "skipped_items",
		Measure:     CounterSkippedItems,
		Description: "Number of search results without a listing entry",
		TagKeys:     []tag.Key{TagReason},
		Aggregation: view.Count(),
	},
	{
		Name:        "fetches",
		Measure:     CounterFetches,
		Description: "Number of upstream fetches",
		TagKeys:     []tag.Key{TagStatus},
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_hits",
		Measure:     CounterCacheHit,
		Description: "Number of cache hits",
		TagKeys:     []tag.Key{TagCacheKey},
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_misses",
		Measure:     CounterCacheMiss,
		Description: "Number of cache misses",
		TagKeys:     []tag.Key{TagCacheKey},
		Aggregation: view.Count(),
	},
}

func RegisterViews() error {
	return view.Register(views...)
}

func record(ctx context.Context, key tag.Key, value string, m stats.Measurement) {
	ctx, _ = tag.New(ctx, tag.Upsert(key, value))
	stats.Record(ctx, m)
}

func RecordSkip(ctx context.Context, reason string) {
	record(ctx, TagReason, reason, CounterSkippedItems.M(1))
}

func RecordFetch(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	record(ctx, TagStatus, status, CounterFetches.M(1))
}

func RecordGeneration(ctx context.Context, entries int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	record(ctx, TagStatus, status, CounterGenerations.M(1))
	if err == nil {
		stats.Record(ctx, CounterEntries.M(int64(entries)))
	}
}

func RecordCacheHit(ctx context.Context, key string) {
	record(ctx, TagCacheKey, key, CounterCacheHit.M(1))
}

func RecordCacheMiss(ctx context.Context, key string) {
	record(ctx, TagCacheKey, key, CounterCacheMiss.M(1))
}

func NewExporter(cfg *config.ServerConfig) (*stackdriver.Exporter, error) {
	if err := RegisterViews(); err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    cfg.ProjectID,
		MetricPrefix: fmt.Sprintf("narstation/%s", cfg.Stage),
	})
	if err != nil {
		return nil, err
	}
	if err := exporter.StartMetricsExporter(); err != nil {
		return nil, err
	}
	return exporter, nil
}
