// Package daemon provides the ingest service daemon for the dolar pipeline.
package daemon

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sebvel/dolar-pipeline/internal/common/cli"
	"github.com/sebvel/dolar-pipeline/internal/common/config"
	"github.com/sebvel/dolar-pipeline/internal/common/constants"
	"github.com/sebvel/dolar-pipeline/internal/common/metrics"
	"github.com/sebvel/dolar-pipeline/internal/ingest"
	"github.com/sebvel/dolar-pipeline/internal/ingest/trigger"
	"github.com/sebvel/dolar-pipeline/internal/rates"
	"github.com/sebvel/dolar-pipeline/internal/store/database"
	"github.com/sebvel/dolar-pipeline/internal/store/objects"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *ingest.Service

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	MetricsConfig metrics.Config
	DBConfig      database.Config
	StorageConfig objects.Config

	SpoolDir string // Optional local spool directory watched instead of bucket notifications.

	ConfigPath string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.IngestServiceCmdName,
		Short:         "Dolar pipeline ingest service",
		Long:          "Dolar pipeline ingest service loads staged raw exchange-rate payloads into the MySQL rates table.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.IngestServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
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

	// Daemon flags
	cmd.Flags().StringVar(&app.config.SpoolDir, "spool-dir", "", "watch a local spool directory instead of bucket notifications")

	// Metrics server flags
	cmd.Flags().DurationVar(&app.config.MetricsConfig.ReadTimeout, "read-timeout", 5*time.Second, "read timeout for the metrics HTTP server")
	cmd.Flags().DurationVar(&app.config.MetricsConfig.WriteTimeout, "write-timeout", 10*time.Second, "write timeout for the metrics HTTP server")
	cmd.Flags().StringVar(&app.config.MetricsConfig.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.MetricsConfig.Port, "metrics-port", 2113, "port for the metrics endpoint")

	addDBFlags(cmd, &app.config.DBConfig)
	addStorageFlags(cmd, &app.config.StorageConfig)

	if err := cmd.MarkFlagDirname("spool-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark spool-dir flag as directory: %v", err))
	}
}

func addDBFlags(cmd *cobra.Command, cfg *database.Config) {
	cmd.Flags().StringVar(&cfg.Host, "db-host", "", "database host")
	cmd.Flags().IntVarP(&cfg.Port, "db-port", "p", constants.DefaultDBPort, "database port")
	cmd.Flags().StringVarP(&cfg.User, "db-user", "u", "", "database user")
	cmd.Flags().StringVarP(&cfg.Password, "db-password", "P", "", "database password")
	cmd.Flags().StringVarP(&cfg.DBName, "db-name", "n", "", "database name")
	cmd.Flags().DurationVar(&cfg.ConnectTimeout, "db-connect-timeout", 10*time.Second, "database connect timeout")
	cmd.Flags().DurationVar(&cfg.ReadTimeout, "db-read-timeout", 15*time.Second, "database read timeout")
	cmd.Flags().DurationVar(&cfg.WriteTimeout, "db-write-timeout", 15*time.Second, "database write timeout")
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
		"db-host":        a.config.DBConfig.Host,
		"db-user":        a.config.DBConfig.User,
		"db-password":    a.config.DBConfig.Password,
		"db-name":        a.config.DBConfig.DBName,
		"storage-bucket": a.config.StorageConfig.Bucket,
	}
	required := []string{"db-host", "db-user", "db-password", "db-name"}
	if a.config.SpoolDir == "" {
		values["storage-endpoint"] = a.config.StorageConfig.Endpoint
		values["storage-access-key"] = a.config.StorageConfig.AccessKey
		values["storage-secret-key"] = a.config.StorageConfig.SecretKey
		required = append(required, "storage-endpoint", "storage-access-key", "storage-secret-key")
	}
	return config.Validate(values, required...)
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
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
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

	db, err := database.Connect(context.Background(), a.config.DBConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	loader := rates.NewLoader(db)

	var runners []ingest.Runner
	if a.config.SpoolDir != "" {
		watcher, err := ingest.NewWatcher(a.config.SpoolDir, loader)
		if err != nil {
			return fmt.Errorf("failed to create spool watcher: %v", err)
		}
		runners = append(runners, watcher)
	} else {
		store, err := objects.New(a.config.StorageConfig)
		if err != nil {
			return fmt.Errorf("failed to create object storage client: %v", err)
		}
		handler, err := trigger.New(store, loader, registry)
		if err != nil {
			return fmt.Errorf("failed to create trigger handler: %v", err)
		}
		runners = append(runners, ingest.NewListener(store, handler))
	}

	metricsServer := metrics.New(a.config.MetricsConfig, registry)

	a.daemon = ingest.New(context.Background(), metricsServer, runners)
	close(a.ready)

	return a.daemon.Run()
}
