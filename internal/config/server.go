package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	Config
	Stage            string `envconfig:"STAGE" default:"dev"`
	ProjectID        string `envconfig:"GOOGLE_CLOUD_PROJECT_ID" default:"narstation"`
	Port             string `envconfig:"PORT" default:"8080"`
	BindAddress      string `envconfig:"BIND_ADDRESS"`
	AdminAccessToken string `envconfig:"ADMIN_ACCESS_TOKEN"`
	CronSchedule     string `envconfig:"CRON_SCHEDULE" default:"@hourly"`
	RunOnStartup     bool   `envconfig:"RUN_ON_STARTUP" default:"true"`
	DisableCache     bool   `envconfig:"DISABLE_REQUEST_CACHE"`
	DisableMetrics   bool   `envconfig:"DISABLE_METRICS"`
	Version          string `ignored:"true"`
}

func NewServerConfigFromEnv() (*ServerConfig, error) {
	var sCfg ServerConfig
	if err := envconfig.Process("", &sCfg); err != nil {
		return nil, err
	}
	if err := sCfg.Validate(); err != nil {
		return nil, err
	}
	return &sCfg, nil
}

func (s *ServerConfig) GetServerAddr() string {
	return s.BindAddress + ":" + s.Port
}

func (c *Config) r2CloudflareEndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{
		URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.CloudflareAccountID),
	}, nil
}

func (c *Config) CreateS3Client() (*s3.Client, error) {
	if c.CloudflareAccountID == "" || c.CloudflareR2AccessKeyID == "" || c.CloudflareR2SecretAccessKey == "" {
		return nil, fmt.Errorf("bucket %s configured without Cloudflare R2 credentials", c.Bucket)
	}
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		c.CloudflareR2AccessKeyID,
		c.CloudflareR2SecretAccessKey,
		"",
	)
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(c.r2CloudflareEndpointResolver)),
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
		awsConfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}

func (c *Config) GetBucket() *string {
	return &c.Bucket
}
