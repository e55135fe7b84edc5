package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/narstation/narstation/pkg/listing"
)

const (
	apiDir         = "repos"
	readmeDir      = "readme"
	searchFileName = "repos.json"
)

const missingSuffix = ".missing"

var (
	ErrCacheMiss       = errors.New("cache file not found")
	ErrMissingUpstream = errors.New("resource does not exist upstream")
)

// Store lays out the snapshot files under Dir: API responses in repos/, readme texts in readme/.
type Store struct {
	Dir string
}

func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) EnsureDirs() error {
	for _, d := range []string{apiDir, readmeDir} {
		if err := os.MkdirAll(filepath.Join(s.Dir, d), 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	return nil
}

func (s *Store) SearchPath() string {
	return filepath.Join(s.Dir, apiDir, searchFileName)
}

func (s *Store) ReleasePath(fullName string) string {
	return filepath.Join(s.Dir, apiDir, listing.Identifier(fullName)+".json")
}

func (s *Store) ReadmePath(fullName string) string {
	return filepath.Join(s.Dir, readmeDir, listing.Identifier(fullName)+".txt")
}

// Read returns the snapshot at path. A snapshot recorded with MarkMissing yields ErrMissingUpstream,
// any other absent file ErrCacheMiss.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if _, mErr := os.Stat(path + missingSuffix); mErr == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingUpstream, path)
		}
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}
	return data, nil
}

// MarkMissing records that the resource behind path answered 404, replacing any stale snapshot.
func (s *Store) MarkMissing(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale cache file: %w", err)
	}
	if err := os.WriteFile(path+missingSuffix, nil, 0o644); err != nil {
		return fmt.Errorf("failed to write missing marker: %w", err)
	}
	return nil
}

func (s *Store) ClearMissing(path string) error {
	if err := os.Remove(path + missingSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove missing marker: %w", err)
	}
	return nil
}
