package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Redirect overrides where a repository's release or readme is looked up.
type Redirect struct {
	// NAR is the "owner/name" of the repository whose latest release carries the archive.
	NAR string `yaml:"nar"`
	// Readme is an absolute URL of the readme text.
	Readme string `yaml:"readme"`
}

type Redirects map[string]*Redirect

func LoadRedirects(path string) (Redirects, error) {
	if path == "" {
		return Redirects{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read redirects file: %w", err)
	}
	redirects := make(Redirects)
	if err := yaml.Unmarshal(data, &redirects); err != nil {
		return nil, fmt.Errorf("failed to parse redirects file %s: %w", path, err)
	}
	for fullName, r := range redirects {
		if r == nil {
			delete(redirects, fullName)
			continue
		}
		if r.NAR != "" && strings.Count(r.NAR, "/") != 1 {
			return nil, fmt.Errorf("redirect for %s has an invalid nar repository %q", fullName, r.NAR)
		}
	}
	return redirects, nil
}

func (r Redirects) Find(fullName string) *Redirect {
	if r == nil {
		return nil
	}
	return r[fullName]
}
