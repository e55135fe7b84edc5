package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/narstation/narstation/internal/cache"
	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/fetch"
	"github.com/narstation/narstation/internal/metrics"
	"github.com/narstation/narstation/pkg/listing"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Fetcher interface {
	FetchAPI(ctx context.Context, url, path string) error
	FetchRaw(ctx context.Context, url, path string) error
	ReadmeDownloadURL(ctx context.Context, fullName string) (string, error)
}

type Pipeline struct {
	log       *logrus.Logger
	cfg       *config.Config
	fetcher   Fetcher
	store     *cache.Store
	redirects config.Redirects
	loc       *time.Location
	now       func() time.Time
}

func New(log *logrus.Logger, cfg *config.Config, fetcher Fetcher, redirects config.Redirects) *Pipeline {
	return &Pipeline{
		log:       log,
		cfg:       cfg,
		fetcher:   fetcher,
		store:     cache.New(cfg.CacheDir),
		redirects: redirects,
		loc:       cfg.Location(),
		now:       time.Now,
	}
}

func (p *Pipeline) searchURL() string {
	return fmt.Sprintf("search/repositories?q=%s&sort=updated&per_page=%d", url.QueryEscape("topic:"+p.cfg.Topic), p.cfg.MaxItems)
}

// Run executes the search, release resolution and entry assembly stages.
// Entries keep the order of the search results.
func (p *Pipeline) Run(ctx context.Context) (*listing.Page, error) {
	if err := p.store.EnsureDirs(); err != nil {
		return nil, err
	}
	items, err := p.search(ctx)
	if err != nil {
		return nil, err
	}
	p.log.Infof("resolving %d search results (download=%t)", len(items), p.cfg.Download)

	results := make([]*listing.Entry, len(items))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			entry, err := p.resolve(gCtx, item)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", item.GetFullName(), err)
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]*listing.Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, e)
		}
	}
	p.log.Infof("assembled %d entries", len(entries))
	return listing.NewPage(entries, p.now().In(p.loc)), nil
}

func (p *Pipeline) fetchAPI(ctx context.Context, url, path string) error {
	err := p.fetcher.FetchAPI(ctx, url, path)
	metrics.RecordFetch(ctx, err)
	return err
}

func (p *Pipeline) fetchRaw(ctx context.Context, url, path string) error {
	err := p.fetcher.FetchRaw(ctx, url, path)
	metrics.RecordFetch(ctx, err)
	return err
}

func (p *Pipeline) search(ctx context.Context) ([]*github.Repository, error) {
	searchPath := p.store.SearchPath()
	if p.cfg.Download {
		if err := p.fetchAPI(ctx, p.searchURL(), searchPath); err != nil {
			return nil, err
		}
	}
	data, err := p.store.Read(searchPath)
	if err != nil {
		return nil, err
	}
	var res github.RepositoriesSearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode search result %s: %w", searchPath, err)
	}
	n := min(res.GetTotal(), p.cfg.MaxItems, len(res.Repositories))
	return res.Repositories[:n], nil
}

func (p *Pipeline) skip(ctx context.Context, log *logrus.Entry, reason, msg string) (*listing.Entry, error) {
	log.WithField("reason", reason).Debug(msg)
	metrics.RecordSkip(ctx, reason)
	return nil, nil
}

// resolve returns a nil entry without error if the item does not qualify for the listing.
func (p *Pipeline) resolve(ctx context.Context, item *github.Repository) (*listing.Entry, error) {
	fullName := item.GetFullName()
	log := p.log.WithField("repo", fullName)

	category, ok := listing.Classify(item.Topics)
	if !ok {
		return p.skip(ctx, log, metrics.SkipReasonUnclassified, "no ukagaka category topic found")
	}

	release, err := p.latestRelease(ctx, item)
	if errors.Is(err, cache.ErrMissingUpstream) {
		return p.skip(ctx, log, metrics.SkipReasonNoRelease, "no latest release")
	}
	if err != nil {
		return nil, err
	}

	asset := selectAsset(release.Assets, p.cfg.ContentType)
	if asset == nil {
		return p.skip(ctx, log, metrics.SkipReasonNoAsset, fmt.Sprintf("no %s asset found", p.cfg.ContentType))
	}

	readme, err := p.readme(ctx, item)
	if errors.Is(err, cache.ErrMissingUpstream) {
		log.Warn("readme not found, skipping")
		return p.skip(ctx, log, metrics.SkipReasonNoReadme, "no readme")
	}
	if err != nil {
		return nil, err
	}

	log.Debugf("assembled %s entry", category)
	return newEntry(item, category, release, asset, readme, p.loc), nil
}

func (p *Pipeline) latestReleaseURL(item *github.Repository) (string, error) {
	releasesURL := item.GetReleasesURL()
	if releasesURL == "" {
		return "", fmt.Errorf("search result has no releases_url")
	}
	if r := p.redirects.Find(item.GetFullName()); r != nil && r.NAR != "" {
		p.log.WithField("repo", item.GetFullName()).Debugf("releases are redirected to %s", r.NAR)
		releasesURL = strings.Replace(releasesURL, item.GetFullName(), r.NAR, 1)
	}
	return strings.Replace(releasesURL, "{/id}", "/latest", 1), nil
}

func (p *Pipeline) latestRelease(ctx context.Context, item *github.Repository) (*github.RepositoryRelease, error) {
	releasePath := p.store.ReleasePath(item.GetFullName())
	if p.cfg.Download {
		latestURL, err := p.latestReleaseURL(item)
		if err != nil {
			return nil, err
		}
		if err := p.refresh(p.fetchAPI(ctx, latestURL, releasePath), releasePath); err != nil {
			return nil, err
		}
	}
	data, err := p.store.Read(releasePath)
	if err != nil {
		return nil, err
	}
	var release github.RepositoryRelease
	if err := json.Unmarshal(data, &release); err != nil {
		return nil, fmt.Errorf("failed to decode release %s: %w", releasePath, err)
	}
	return &release, nil
}

// refresh updates the missing marker of path after a fetch; a 404 is not an error.
func (p *Pipeline) refresh(fetchErr error, path string) error {
	if fetch.IsNotFound(fetchErr) {
		return p.store.MarkMissing(path)
	}
	if fetchErr != nil {
		return fetchErr
	}
	return p.store.ClearMissing(path)
}

func (p *Pipeline) readmeURL(item *github.Repository) string {
	if r := p.redirects.Find(item.GetFullName()); r != nil && r.Readme != "" {
		return r.Readme
	}
	return fmt.Sprintf("%s/%s/%s/readme.txt", strings.TrimSuffix(p.cfg.RawContentURL, "/"), item.GetFullName(), item.GetDefaultBranch())
}

func (p *Pipeline) readme(ctx context.Context, item *github.Repository) (string, error) {
	readmePath := p.store.ReadmePath(item.GetFullName())
	if p.cfg.Download {
		err := p.fetchRaw(ctx, p.readmeURL(item), readmePath)
		if fetch.IsNotFound(err) {
			err = p.fetchReadmeFallback(ctx, item.GetFullName(), readmePath)
		}
		if err := p.refresh(err, readmePath); err != nil {
			return "", err
		}
	}
	data, err := p.store.Read(readmePath)
	if err != nil {
		return "", err
	}
	return decodeText(data), nil
}

func (p *Pipeline) fetchReadmeFallback(ctx context.Context, fullName, readmePath string) error {
	dlURL, err := p.fetcher.ReadmeDownloadURL(ctx, fullName)
	if err != nil {
		return err
	}
	p.log.WithField("repo", fullName).Debugf("readme.txt not found, using %s", dlURL)
	return p.fetchRaw(ctx, dlURL, readmePath)
}
