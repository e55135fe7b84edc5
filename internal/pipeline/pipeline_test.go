package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/narstation/narstation/internal/cache"
	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/fetch"
	"github.com/narstation/narstation/pkg/listing"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const narContentType = "application/x-nar"

type fakeFetcher struct {
	mu      sync.Mutex
	api     map[string]string
	raw     map[string]string
	readmes map[string]string
	failing map[string]bool
	calls   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		api:     make(map[string]string),
		raw:     make(map[string]string),
		readmes: make(map[string]string),
		failing: make(map[string]bool),
	}
}

func (f *fakeFetcher) serve(bodies map[string]string, url, path string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	body, ok := bodies[url]
	failing := f.failing[url]
	f.mu.Unlock()
	if failing {
		return &fetch.Error{URL: url, Path: path, StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}
	}
	if !ok {
		return &fetch.Error{URL: url, Path: path, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

func (f *fakeFetcher) FetchAPI(_ context.Context, url, path string) error {
	return f.serve(f.api, url, path)
}

func (f *fakeFetcher) FetchRaw(_ context.Context, url, path string) error {
	return f.serve(f.raw, url, path)
}

func (f *fakeFetcher) ReadmeDownloadURL(_ context.Context, fullName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.readmes[fullName]; ok {
		return u, nil
	}
	return "", &fetch.Error{URL: fullName, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
}

func (f *fakeFetcher) called(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cnt := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			cnt++
		}
	}
	return cnt
}

func newItem(fullName string, topics ...string) *github.Repository {
	owner, name, _ := strings.Cut(fullName, "/")
	return &github.Repository{
		FullName:      github.String(fullName),
		Name:          github.String(name),
		Owner:         &github.User{Login: github.String(owner)},
		HTMLURL:       github.String("https://github.com/" + fullName),
		Topics:        topics,
		DefaultBranch: github.String("main"),
		ReleasesURL:   github.String("https://api.github.com/repos/" + fullName + "/releases{/id}"),
	}
}

func newAsset(contentType, dlURL string, size int) *github.ReleaseAsset {
	created := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	return &github.ReleaseAsset{
		ContentType:        github.String(contentType),
		CreatedAt:          &github.Timestamp{Time: created},
		UpdatedAt:          &github.Timestamp{Time: created.Add(36 * time.Hour)},
		BrowserDownloadURL: github.String(dlURL),
		Size:               github.Int(size),
		DownloadCount:      github.Int(7),
	}
}

func mustJSON(t *testing.T, v any) string {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func searchJSON(t *testing.T, total int, items ...*github.Repository) string {
	return mustJSON(t, &github.RepositoriesSearchResult{
		Total:        github.Int(total),
		Repositories: items,
	})
}

func releaseJSON(t *testing.T, tag string, assets ...*github.ReleaseAsset) string {
	return mustJSON(t, &github.RepositoryRelease{TagName: github.String(tag), Assets: assets})
}

func latestURL(fullName string) string {
	return "https://api.github.com/repos/" + fullName + "/releases/latest"
}

func readmeURL(fullName string) string {
	return "https://raw.githubusercontent.com/" + fullName + "/main/readme.txt"
}

func newTestConfig(t *testing.T) *config.Config {
	return &config.Config{
		Topic:         "sosiremi",
		MaxItems:      30,
		Download:      true,
		UTCOffset:     9 * time.Hour,
		UserAgent:     "Mozilla/1.0 (Win3.1)",
		ContentType:   narContentType,
		CacheDir:      t.TempDir(),
		Concurrency:   4,
		RawContentURL: "https://raw.githubusercontent.com/",
	}
}

func newTestPipeline(cfg *config.Config, f Fetcher, redirects config.Redirects) *Pipeline {
	log := logrus.New()
	log.Out = io.Discard
	p := New(log, cfg, f, redirects)
	p.now = func() time.Time { return time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC) }
	return p
}

func addQualifyingItem(t *testing.T, f *fakeFetcher, fullName string) {
	f.api[latestURL(fullName)] = releaseJSON(t, "v1.0.0", newAsset(narContentType, "https://github.com/"+fullName+"/releases/download/v1.0.0/"+fullName[strings.Index(fullName, "/")+1:]+".nar", 2048))
	f.raw[readmeURL(fullName)] = "readme of " + fullName
}

func TestRunSingleQualifyingItem(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	f.api[p.searchURL()] = searchJSON(t, 2, newItem("owner/untagged"), newItem("owner/balloon-repo", "sosiremi", "ukagaka-balloon"))
	f.api[latestURL("owner/balloon-repo")] = releaseJSON(t, "v1.2.0",
		newAsset("application/zip", "https://example.com/a.zip", 100),
		newAsset(narContentType, "https://example.com/balloon.nar", 1536),
	)
	f.raw[readmeURL("owner/balloon-repo")] = "balloon readme"

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	e := page.Entries[0]
	require.Equal(t, "owner_balloon-repo", e.ID)
	require.Equal(t, "balloon-repo", e.Title)
	require.Equal(t, listing.CategoryBalloon, e.Category)
	require.Equal(t, "owner", e.Author)
	require.Equal(t, "https://github.com/owner/balloon-repo", e.HTMLURL)
	require.Equal(t, "1.2.0", e.Version)
	require.Equal(t, "2022-03-01T00:00:00Z", e.CreatedAt)
	require.Equal(t, "2022-03-01 09:00:00", e.CreatedAtStr)
	require.Equal(t, "2022-03-02T12:00:00Z", e.UpdatedAt)
	require.Equal(t, "2022-03-02 21:00:00", e.UpdatedAtStr)
	require.Equal(t, "https://example.com/balloon.nar", e.DownloadURL)
	require.Equal(t, "x-ukagaka-link:type=install&url=https%3A%2F%2Fexample.com%2Fballoon.nar", e.InstallURI)
	require.Equal(t, "1.5", e.FileSize)
	require.Equal(t, "1.5 KiB", e.FileSizeHuman)
	require.Equal(t, 7, e.DownloadCount)
	require.Equal(t, "balloon readme", e.Readme)
	require.Equal(t, []listing.Category{listing.CategoryBalloon}, page.Categories)
	require.Equal(t, []string{"owner"}, page.Authors)

	// the untagged item never reaches the release stage
	require.Equal(t, 0, f.called(latestURL("owner/untagged")))
	require.FileExists(t, filepath.Join(cfg.CacheDir, "repos", "repos.json"))
	require.FileExists(t, filepath.Join(cfg.CacheDir, "repos", "owner_balloon-repo.json"))
	require.FileExists(t, filepath.Join(cfg.CacheDir, "readme", "owner_balloon-repo.txt"))
	require.NoFileExists(t, filepath.Join(cfg.CacheDir, "repos", "owner_untagged.json"))
}

func TestRunPriorityAndFirstAsset(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	f.api[p.searchURL()] = searchJSON(t, 1, newItem("owner/both", "ukagaka-shell", "ukagaka-ghost"))
	f.api[latestURL("owner/both")] = releaseJSON(t, "2022.03",
		newAsset(narContentType, "https://example.com/first.nar", 2048),
		newAsset(narContentType, "https://example.com/second.nar", 4096),
	)
	f.raw[readmeURL("owner/both")] = "readme"

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, listing.CategoryGhost, page.Entries[0].Category)
	require.Equal(t, "https://example.com/first.nar", page.Entries[0].DownloadURL)
	require.Equal(t, "2.0", page.Entries[0].FileSize)
}

func TestRunSkipsItemsWithoutNAR(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	f.api[p.searchURL()] = searchJSON(t, 3,
		newItem("owner/zip-only", "ukagaka-ghost"),
		newItem("owner/no-assets", "ukagaka-shell"),
		newItem("owner/no-release", "ukagaka-plugin"),
	)
	f.api[latestURL("owner/zip-only")] = releaseJSON(t, "v1", newAsset("application/zip", "https://example.com/a.zip", 1))
	f.api[latestURL("owner/no-assets")] = `{"tag_name":"v1"}`

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, page.Entries)
	require.Equal(t, 0, f.called("https://raw.githubusercontent.com/"))

	// a cached rerun sees the same result
	cfg.Download = false
	page, err = p.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, page.Entries)
}

func TestRunMaxItems(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.MaxItems = 2
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	items := make([]*github.Repository, 0)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("owner/ghost-%d", i)
		items = append(items, newItem(name, "ukagaka-ghost"))
		addQualifyingItem(t, f, name)
	}
	f.api[p.searchURL()] = searchJSON(t, 5, items...)
	require.Contains(t, p.searchURL(), "per_page=2")

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	require.Equal(t, 2, f.called("https://api.github.com/repos/"))
}

func TestRunTotalCountBelowItems(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	addQualifyingItem(t, f, "owner/a")
	addQualifyingItem(t, f, "owner/b")
	f.api[p.searchURL()] = searchJSON(t, 1, newItem("owner/a", "ukagaka-ghost"), newItem("owner/b", "ukagaka-ghost"))

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "owner_a", page.Entries[0].ID)
}

func TestRunKeepsSearchOrder(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Concurrency = 8
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	items := make([]*github.Repository, 0)
	expected := make([]string, 0)
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("author%d/item-%02d", i%3, i)
		if i%4 == 0 {
			items = append(items, newItem(name, "unrelated"))
			continue
		}
		items = append(items, newItem(name, listing.Categories[i%4].Topic()))
		addQualifyingItem(t, f, name)
		expected = append(expected, listing.Identifier(name))
	}
	f.api[p.searchURL()] = searchJSON(t, 100, items...)

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	actual := make([]string, len(page.Entries))
	for i, e := range page.Entries {
		actual[i] = e.ID
	}
	require.Equal(t, expected, actual)
	require.Equal(t, []string{"author1", "author2", "author0"}, page.Authors)
}

func TestRunCachedWithoutFiles(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Download = false
	f := newFakeFetcher()
	_, err := newTestPipeline(cfg, f, nil).Run(context.Background())
	require.ErrorIs(t, err, cache.ErrCacheMiss)
	require.Empty(t, f.calls)
}

func TestRunCachedMissingReadme(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	f.api[p.searchURL()] = searchJSON(t, 1, newItem("owner/ghost", "ukagaka-ghost"))
	addQualifyingItem(t, f, "owner/ghost")
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(cfg.CacheDir, "readme", "owner_ghost.txt")))
	cfg.Download = false
	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, cache.ErrCacheMiss)
	require.ErrorContains(t, err, "owner/ghost")
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	f.api[p.searchURL()] = searchJSON(t, 1, newItem("owner/ghost", "ukagaka-ghost"))
	addQualifyingItem(t, f, "owner/ghost")
	f.failing[latestURL("owner/ghost")] = true

	_, err := p.Run(context.Background())
	var fErr *fetch.Error
	require.ErrorAs(t, err, &fErr)
	require.Equal(t, http.StatusBadGateway, fErr.StatusCode)
}

func TestRunCorruptSnapshot(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Download = false
	p := newTestPipeline(cfg, newFakeFetcher(), nil)
	require.NoError(t, cache.New(cfg.CacheDir).EnsureDirs())
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CacheDir, "repos", "repos.json"), []byte("Could not resolve host"), 0o644))

	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "failed to decode search result")
}

func TestRunReadmeFallback(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, nil)
	f.api[p.searchURL()] = searchJSON(t, 2, newItem("owner/fallback", "ukagaka-shell"), newItem("owner/none", "ukagaka-shell"))
	f.api[latestURL("owner/fallback")] = releaseJSON(t, "v1", newAsset(narContentType, "https://example.com/f.nar", 10))
	f.api[latestURL("owner/none")] = releaseJSON(t, "v1", newAsset(narContentType, "https://example.com/n.nar", 10))
	f.readmes["owner/fallback"] = "https://raw.githubusercontent.com/owner/fallback/main/README.md"
	f.raw["https://raw.githubusercontent.com/owner/fallback/main/README.md"] = "# fallback"

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "# fallback", page.Entries[0].Readme)

	cfg.Download = false
	page, err = p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
}

func TestRunRedirects(t *testing.T) {
	cfg := newTestConfig(t)
	f := newFakeFetcher()
	p := newTestPipeline(cfg, f, config.Redirects{
		"owner/ghost": {NAR: "owner/ghost-dist", Readme: "https://example.com/ghost.txt"},
	})
	f.api[p.searchURL()] = searchJSON(t, 1, newItem("owner/ghost", "ukagaka-ghost"))
	f.api[latestURL("owner/ghost-dist")] = releaseJSON(t, "v3", newAsset(narContentType, "https://example.com/ghost.nar", 10))
	f.raw["https://example.com/ghost.txt"] = "redirected readme"

	page, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "owner_ghost", page.Entries[0].ID)
	require.Equal(t, "redirected readme", page.Entries[0].Readme)
	require.FileExists(t, filepath.Join(cfg.CacheDir, "repos", "owner_ghost.json"))
}

func TestSelectAsset(t *testing.T) {
	require.Nil(t, selectAsset(nil, narContentType))
	assets := []*github.ReleaseAsset{
		newAsset("application/zip", "zip", 1),
		newAsset(narContentType, "first", 1),
		newAsset(narContentType, "second", 1),
	}
	require.Equal(t, "first", selectAsset(assets, narContentType).GetBrowserDownloadURL())
	require.Nil(t, selectAsset(assets, "application/x-msdownload"))
}

func TestDecodeText(t *testing.T) {
	require.Equal(t, "こんにちは", decodeText([]byte("こんにちは")))
	// "ゴースト" in Shift_JIS
	require.Equal(t, "ゴースト", decodeText([]byte{0x83, 0x53, 0x81, 0x5b, 0x83, 0x58, 0x83, 0x67}))
}

func TestReleaseVersion(t *testing.T) {
	require.Equal(t, "1.2.3", releaseVersion("v1.2.3"))
	require.Equal(t, "release-3", releaseVersion("release-3"))
}
