// Package daemon provides the fetch service daemon for the dolar pipeline.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sebvel/dolar-pipeline/internal/common/cli"
	"github.com/sebvel/dolar-pipeline/internal/common/config"
	"github.com/sebvel/dolar-pipeline/internal/common/constants"
	"github.com/sebvel/dolar-pipeline/internal/common/metrics"
	"github.com/sebvel/dolar-pipeline/internal/fetcher"
	"github.com/sebvel/dolar-pipeline/internal/store/objects"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	cancel        context.CancelFunc
	metricsServer *metrics.Server
	done          chan struct{}

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	FetchConfig   fetcher.Config
	StorageConfig objects.Config
	MetricsConfig metrics.Config
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{}), done: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.FetchServiceCmdName,
		Short:         "Dolar pipeline fetch service",
		Long:          "Dolar pipeline fetch service periodically downloads the upstream exchange-rate feed and stages the raw payload in object storage.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.FetchServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Fetch flags
	cmd.Flags().StringVar(&app.config.FetchConfig.FeedURL, "feed-url", constants.DefaultFeedURL, "upstream feed URL")
	cmd.Flags().DurationVar(&app.config.FetchConfig.Interval, "fetch-interval", 5*time.Minute, "interval between feed fetches")
	cmd.Flags().DurationVar(&app.config.FetchConfig.Timeout, "fetch-timeout", 30*time.Second, "timeout for one feed fetch")

	// Metrics server flags
	cmd.Flags().StringVar(&app.config.MetricsConfig.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.MetricsConfig.Port, "metrics-port", 2114, "port for the metrics endpoint")
	cmd.Flags().DurationVar(&app.config.MetricsConfig.ReadTimeout, "read-timeout", 5*time.Second, "read timeout for the metrics HTTP server")
	cmd.Flags().DurationVar(&app.config.MetricsConfig.WriteTimeout, "write-timeout", 10*time.Second, "write timeout for the metrics HTTP server")

	addStorageFlags(cmd, &app.config.StorageConfig)
}

func addStorageFlags(cmd *cobra.Command, cfg *objects.Config) {
	cmd.Flags().StringVar(&cfg.Endpoint, "storage-endpoint", "", "object storage endpoint")
	cmd.Flags().StringVar(&cfg.AccessKey, "storage-access-key", "", "object storage access key")
	cmd.Flags().StringVar(&cfg.SecretKey, "storage-secret-key", "", "object storage secret key")
	cmd.Flags().BoolVar(&cfg.UseSSL, "storage-ssl", false, "use TLS for object storage")
	cmd.Flags().StringVar(&cfg.Bucket, "storage-bucket", constants.DefaultRawBucket, "object storage bucket for raw payloads")
}

// validateConfig rejects missing or unresolved configuration before any I/O.
func (a *App) validateConfig() error {
	values := map[string]string{
		"feed-url":           a.config.FetchConfig.FeedURL,
		"storage-endpoint":   a.config.StorageConfig.Endpoint,
		"storage-access-key": a.config.StorageConfig.AccessKey,
		"storage-secret-key": a.config.StorageConfig.SecretKey,
		"storage-bucket":     a.config.StorageConfig.Bucket,
	}
	return config.Validate(values, "feed-url", "storage-endpoint", "storage-access-key", "storage-secret-key")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	defer close(a.done)
	defer func() {
		if err != nil {
			select {
			case <-a.ready:
			default:
				close(a.ready)
			}
		}
	}()

	if err := a.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := objects.New(a.config.StorageConfig)
	if err != nil {
		return fmt.Errorf("failed to create object storage client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket: %v", err)
	}

	registry := prometheus.NewRegistry()
	job, err := fetcher.New(a.config.FetchConfig, store, registry)
	if err != nil {
		return fmt.Errorf("failed to create fetch job: %v", err)
	}

	a.metricsServer = metrics.New(a.config.MetricsConfig, registry)
	close(a.ready)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if mErr := a.metricsServer.ListenAndServe(); mErr != nil && !errors.Is(mErr, http.ErrServerClosed) {
			slog.Error("Metrics server encountered error", "err", mErr)
		}
	}()

	err = job.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.metricsServer.Close()
	wg.Wait()
	return err
}
