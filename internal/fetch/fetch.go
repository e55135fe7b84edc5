package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/hashicorp/go-retryablehttp"
)

// Error describes a failed transfer. The destination file is left untouched.
type Error struct {
	URL        string
	Path       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s into %s (status %d): %v", e.URL, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s into %s: %v", e.URL, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.StatusCode == http.StatusNotFound
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

type Fetcher struct {
	ghClient  *github.Client
	rawClient *retryablehttp.Client
	userAgent string
}

func New(ghClient *github.Client, userAgent string) *Fetcher {
	rawClient := retryablehttp.NewClient()
	rawClient.Logger = nil
	rawClient.HTTPClient.Timeout = time.Minute
	return &Fetcher{
		ghClient:  ghClient,
		rawClient: rawClient,
		userAgent: userAgent,
	}
}

// FetchAPI stores the raw body of a GitHub API resource at path.
func (f *Fetcher) FetchAPI(ctx context.Context, url, path string) error {
	req, err := f.ghClient.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return &Error{URL: url, Path: path, Err: err}
	}
	return writeFile(url, path, func(w io.Writer) (int, error) {
		resp, err := f.ghClient.Do(ctx, req, w)
		if resp != nil {
			return resp.StatusCode, err
		}
		return 0, err
	})
}

// FetchRaw stores the body of a plain download URL at path.
func (f *Fetcher) FetchRaw(ctx context.Context, url, path string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{URL: url, Path: path, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	return writeFile(url, path, func(w io.Writer) (int, error) {
		resp, err := f.rawClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		_, err = io.Copy(w, resp.Body)
		return resp.StatusCode, err
	})
}

// ReadmeDownloadURL asks the GitHub API for the download URL of a repository's preferred README.
func (f *Fetcher) ReadmeDownloadURL(ctx context.Context, fullName string) (string, error) {
	owner, repo := getOwnerRepo(fullName)
	if owner == "" {
		return "", fmt.Errorf("invalid repository name %q", fullName)
	}
	content, _, err := f.ghClient.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return "", err
	}
	if content.GetDownloadURL() == "" {
		return "", fmt.Errorf("readme of %s has no download url", fullName)
	}
	return content.GetDownloadURL(), nil
}

func getOwnerRepo(fullRepo string) (string, string) {
	owner, repo, found := strings.Cut(fullRepo, "/")
	if !found {
		return "", ""
	}
	return owner, repo
}

func writeFile(url, path string, fetchFn func(w io.Writer) (int, error)) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".fetch-*")
	if err != nil {
		return &Error{URL: url, Path: path, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	defer os.Remove(tmpFile.Name())

	statusCode, err := fetchFn(tmpFile)
	if closeErr := tmpFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err != nil {
		return &Error{URL: url, Path: path, StatusCode: statusCode, Err: err}
	}
	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		return &Error{URL: url, Path: path, Err: err}
	}
	if err := os.Rename(tmpFile.Name(), path); err != nil {
		return &Error{URL: url, Path: path, Err: fmt.Errorf("failed to move temp file: %w", err)}
	}
	return nil
}
