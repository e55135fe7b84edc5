package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/metrics"
	"github.com/narstation/narstation/internal/render"
	"github.com/narstation/narstation/pkg/listing"
	"github.com/sirupsen/logrus"
)

type Runner interface {
	Run(ctx context.Context) (*listing.Page, error)
}

type Publisher interface {
	Publish(ctx context.Context, files map[string][]byte) ([]string, error)
}

// Result is the outcome of one complete generation.
type Result struct {
	Page     *listing.Page
	Files    map[string][]byte
	Uploaded []string
	Duration time.Duration
}

type Generator struct {
	log       *logrus.Logger
	cfg       *config.Config
	runner    Runner
	renderer  *render.Renderer
	publisher Publisher

	mu   sync.RWMutex
	last *Result
}

// New creates a generator. publisher may be nil.
func New(log *logrus.Logger, cfg *config.Config, runner Runner, publisher Publisher) *Generator {
	return &Generator{
		log:       log,
		cfg:       cfg,
		runner:    runner,
		renderer:  render.New(render.Site{Title: cfg.SiteTitle, URL: cfg.SiteURL}),
		publisher: publisher,
	}
}

// Generate runs the pipeline, writes the rendered artifacts to the output directory and
// publishes them. Nothing is written when the pipeline fails.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	start := time.Now()
	page, err := g.runner.Run(ctx)
	if err != nil {
		metrics.RecordGeneration(ctx, 0, err)
		return nil, err
	}
	files, err := g.renderer.WriteFiles(g.cfg.OutputDir, page)
	if err != nil {
		metrics.RecordGeneration(ctx, 0, err)
		return nil, err
	}
	res := &Result{Page: page, Files: files}
	if g.publisher != nil {
		res.Uploaded, err = g.publisher.Publish(ctx, files)
		if err != nil {
			metrics.RecordGeneration(ctx, 0, err)
			return nil, fmt.Errorf("failed to publish: %w", err)
		}
	}
	res.Duration = time.Since(start)
	metrics.RecordGeneration(ctx, len(page.Entries), nil)
	g.log.Infof("generated %d entries in %s (uploaded: %v)", len(page.Entries), res.Duration.Round(time.Millisecond), res.Uploaded)

	g.mu.Lock()
	g.last = res
	g.mu.Unlock()
	return res, nil
}

// Last returns the most recent successful result or nil.
func (g *Generator) Last() *Result {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last
}
