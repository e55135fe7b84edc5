package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/generator"
	"github.com/narstation/narstation/internal/metrics"
	"github.com/narstation/narstation/internal/server"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

func run(log *logrus.Logger) error {
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Version = version
	if err := generator.SetupLogger(log, &cfg.Config); err != nil {
		return err
	}
	log.Infof("starting narstation (version=%s, stage=%s, topic=%s)", version, cfg.Stage, cfg.Topic)

	if !cfg.DisableMetrics {
		log.Println("setting up metrics exporter...")
		exporter, err := metrics.NewExporter(cfg)
		if err != nil {
			return err
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	} else if err := metrics.RegisterViews(); err != nil {
		return err
	}

	log.Println("setting up generator...")
	gen, err := generator.NewFromConfig(log, &cfg.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(log, gen, cfg)
	if err := srv.StartScheduler(ctx); err != nil {
		return err
	}
	if cfg.RunOnStartup {
		go func() {
			if _, err := srv.Regenerate(ctx, "startup"); err != nil {
				log.Errorf("initial generation failed: %v", err)
			}
		}()
	}

	log.Println("starting server...")
	httpSrv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	<-ctx.Done()
	stop()

	log.Println("stopping scheduler...")
	srv.StopScheduler()

	log.Println("stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); errors.Is(err, context.DeadlineExceeded) {
		log.Println("closing server...")
		if closeErr := httpSrv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	log.Println("server stopped!")
	return nil
}

func main() {
	log := setupLogger()
	if err := run(log); err != nil {
		log.Fatal(err)
	}
}
