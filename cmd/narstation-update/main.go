package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/generator"
	"github.com/narstation/narstation/pkg/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	runE := func(fn func(*logrus.Logger, *cobra.Command) error) func(*cobra.Command, []string) {
		return func(cmd *cobra.Command, _ []string) {
			if err := fn(log, cmd); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		}
	}

	cmd := &cobra.Command{
		Use:     "narstation-update",
		Short:   "Generate the NAR listing locally or trigger a server update",
		Version: version,
		Args:    cobra.NoArgs,
		Run:     runE(generate),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	cmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the search, resolve and render stages and write the listing",
		Args:  cobra.NoArgs,
		Run:   runE(generate),
	}
	for _, c := range []*cobra.Command{cmd, generateCmd} {
		c.Flags().String("topic", "", "topic label to search for (overrides TOPIC)")
		c.Flags().IntP("max", "m", 0, "maximum number of search results (overrides MAX_ITEMS)")
		c.Flags().Bool("no-download", false, "use cached files only")
		c.Flags().StringP("output", "o", "", "output directory (overrides OUTPUT_DIR)")
		c.Flags().String("cache-dir", "", "cache directory (overrides CACHE_DIR)")
		c.Flags().SortFlags = false
	}

	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a listing update on one or more servers",
		Args:  cobra.NoArgs,
		Run:   runE(trigger),
	}
	triggerCmd.Flags().StringArrayP("registry-url", "r", nil, "the narstation server URL")
	triggerCmd.Flags().String("admin-access-token", os.Getenv("NARSTATION_ADMIN_ACCESS_TOKEN"), "admin access token")
	triggerCmd.Flags().SortFlags = false

	cmd.AddCommand(generateCmd, triggerCmd)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func applyFlags(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("topic") {
		cfg.Topic = must(flags.GetString("topic"))
	}
	if flags.Changed("max") {
		cfg.MaxItems = must(flags.GetInt("max"))
	}
	if must(flags.GetBool("no-download")) {
		cfg.Download = false
	}
	if flags.Changed("output") {
		cfg.OutputDir = must(flags.GetString("output"))
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = must(flags.GetString("cache-dir"))
	}
	if logLevel := must(cmd.Flags().GetString("log-level")); logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func generate(log *logrus.Logger, cmd *cobra.Command) error {
	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := generator.SetupLogger(log, cfg); err != nil {
		return err
	}
	log.Infof("starting narstation-update (version=%s, topic=%s, download=%t)", version, cfg.Topic, cfg.Download)

	gen, err := generator.NewFromConfig(log, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := gen.Generate(ctx)
	if err != nil {
		return err
	}
	log.Infof("wrote %d entries to %s", len(res.Page.Entries), cfg.OutputDir)
	return nil
}

func trigger(log *logrus.Logger, cmd *cobra.Command) error {
	registryURLs := must(cmd.Flags().GetStringArray("registry-url"))
	if len(registryURLs) == 0 {
		return errors.New("no registry URLs provided")
	}
	adminAccessToken := must(cmd.Flags().GetString("admin-access-token"))
	if adminAccessToken == "" {
		return errors.New("no admin access token provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, url := range registryURLs {
		url = strings.TrimSuffix(url, "/")
		if !strings.HasSuffix(url, "/api/v1") {
			url += "/api/v1"
		}
		log.Infof("updating narstation: %s", url)
		res, err := client.New(url).TriggerUpdate(ctx, adminAccessToken)
		if err != nil {
			log.Errorf("failed to update %s: %v", url, err)
			failed++
			continue
		}
		log.Infof("%s updated with %d entries (uploaded: %v)", url, res.Entries, res.Uploaded)
	}
	if failed > 0 {
		return errors.New("some updates failed")
	}
	return nil
}
