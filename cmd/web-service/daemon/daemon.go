// Package daemon provides the web service daemon for the dolar pipeline.
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
	"github.com/sebvel/dolar-pipeline/internal/store/database"
	"github.com/sebvel/dolar-pipeline/internal/webservice"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon        *webservice.Server
	metricsServer *metrics.Server

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Daemon        webservice.StaticConfig
	DBConfig      database.Config
	MetricsConfig metrics.Config
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.WebServiceCmdName,
		Short:         "Dolar pipeline web service",
		Long:          "Dolar pipeline web service serves interval queries over the ingested exchange-rate rows.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.WebServiceCmdName, a.cmd, a.viper); err != nil {
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

	defaultConf := webservice.StaticConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   20 * time.Second,
		RequestTimeout: 15 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB

		ListenPort: 8080,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Daemon flags
	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.MetricsConfig.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.MetricsConfig.Port, "metrics-port", 2112, "port for the metrics endpoint")

	addDBFlags(cmd, &app.config.DBConfig)
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

// validateConfig rejects missing or unresolved configuration before any I/O.
func (a *App) validateConfig() error {
	values := map[string]string{
		"db-host":     a.config.DBConfig.Host,
		"db-user":     a.config.DBConfig.User,
		"db-password": a.config.DBConfig.Password,
		"db-name":     a.config.DBConfig.DBName,
	}
	return config.Validate(values, "db-host", "db-user", "db-password", "db-name")
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
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(context.Background()); err != nil {
			slog.Error("Metrics server shutdown failed", "err", err)
		}
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
	a.daemon, err = webservice.New(context.Background(), db, registry, a.config.Daemon)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
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

	err = a.daemon.Run()
	a.metricsServer.Close()
	wg.Wait()
	return err
}
