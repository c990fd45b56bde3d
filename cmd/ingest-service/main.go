package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebvel/dolar-pipeline/cmd/ingest-service/daemon"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		slog.Error("Failed to create application", "err", err)
		os.Exit(1)
	}

	installSignalHandler(a)

	if err := a.Run(); err != nil {
		slog.Error("Service exited with error", "err", err)
		if a.UsageError() {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type quitter interface {
	Quit()
	Hup() bool
}

func installSignalHandler(a quitter) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for s := range sigs {
			switch s {
			case syscall.SIGINT, syscall.SIGTERM:
				a.Quit()
				return
			case syscall.SIGHUP:
				if a.Hup() {
					a.Quit()
					return
				}
			}
		}
	}()
}
