package generator

import (
	"fmt"

	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/fetch"
	"github.com/narstation/narstation/internal/pipeline"
	"github.com/narstation/narstation/internal/publish"
	"github.com/sirupsen/logrus"
)

// NewFromConfig wires the fetcher, pipeline and optional publisher described by cfg.
func NewFromConfig(log *logrus.Logger, cfg *config.Config) (*Generator, error) {
	ghClient, err := cfg.CreateGitHubClient()
	if err != nil {
		return nil, err
	}
	redirects, err := config.LoadRedirects(cfg.RedirectsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load redirects: %w", err)
	}
	p := pipeline.New(log, cfg, fetch.New(ghClient, cfg.UserAgent), redirects)

	var publisher Publisher
	if cfg.PublishEnabled() {
		s3Client, err := cfg.CreateS3Client()
		if err != nil {
			return nil, err
		}
		log.Infof("publishing to bucket %s", cfg.Bucket)
		publisher = publish.New(log, s3Client, cfg.Bucket)
	}
	return New(log, cfg, p, publisher), nil
}

// SetupLogger applies the configured log level.
func SetupLogger(log *logrus.Logger, cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	return nil
}
