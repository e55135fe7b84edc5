package config

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
)

type Config struct {
	Topic         string        `envconfig:"TOPIC" default:"sosiremi"`
	MaxItems      int           `envconfig:"MAX_ITEMS" default:"30"`
	Download      bool          `envconfig:"DOWNLOAD" default:"true"`
	UTCOffset     time.Duration `envconfig:"UTC_OFFSET" default:"9h"`
	UserAgent     string        `envconfig:"USER_AGENT" default:"Mozilla/1.0 (Win3.1)"`
	ContentType   string        `envconfig:"CONTENT_TYPE" default:"application/x-nar"`
	CacheDir      string        `envconfig:"CACHE_DIR" default:"."`
	OutputDir     string        `envconfig:"OUTPUT_DIR" default:"public"`
	SiteURL       string        `envconfig:"SITE_URL" default:"./"`
	SiteTitle     string        `envconfig:"SITE_TITLE" default:"偽SoSiReMi"`
	Concurrency   int           `envconfig:"CONCURRENCY" default:"4"`
	GitHubToken   string        `envconfig:"GITHUB_TOKEN"`
	GitHubAPIURL  string        `envconfig:"GITHUB_API_URL"`
	RawContentURL string        `envconfig:"RAW_CONTENT_URL" default:"https://raw.githubusercontent.com"`
	RedirectsFile string        `envconfig:"REDIRECTS_FILE"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`

	Bucket                      string `envconfig:"BUCKET"`
	CloudflareAccountID         string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	CloudflareR2AccessKeyID     string `envconfig:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	CloudflareR2SecretAccessKey string `envconfig:"CLOUDFLARE_R2_SECRET_ACCESS_KEY"`
}

func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Topic == "":
		return fmt.Errorf("topic is required")
	case c.MaxItems < 1 || c.MaxItems > 100:
		return fmt.Errorf("max items must be between 1 and 100, got %d", c.MaxItems)
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	case c.ContentType == "":
		return fmt.Errorf("content type is required")
	}
	return nil
}

// Location is the fixed zone every displayed timestamp is rendered in.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", int(c.UTCOffset.Hours())), int(c.UTCOffset.Seconds()))
}

func (c *Config) CreateGitHubClient() (*github.Client, error) {
	var httpClient *http.Client
	if c.GitHubToken != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.GitHubToken}))
	}
	return c.setupGitHubClient(github.NewClient(httpClient))
}

func (c *Config) setupGitHubClient(ghClient *github.Client) (*github.Client, error) {
	ghClient.UserAgent = c.UserAgent
	if c.GitHubAPIURL == "" {
		return ghClient, nil
	}
	apiURL := c.GitHubAPIURL
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
	}
	ghClient.BaseURL = baseURL
	return ghClient, nil
}

// WrapGitHubClient applies user agent and API URL settings to a client built elsewhere.
func (c *Config) WrapGitHubClient(httpClient *http.Client) (*github.Client, error) {
	return c.setupGitHubClient(github.NewClient(httpClient))
}

func (c *Config) PublishEnabled() bool {
	return c.Bucket != ""
}
