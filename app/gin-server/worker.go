package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume audio turns from the Redis stream",
	RunE:  runWorker,
}

var workerCount int

func init() {
	workerCmd.Flags().IntVar(&workerCount, "count", 0, "Number of consumers (defaults to WORKER_COUNT)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load()
	if err != nil {
		return err
	}
	if workerCount > 0 {
		settings.WorkerCount = workerCount
	}

	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	pool, err := a.WorkerPool()
	if err != nil {
		return err
	}
	return pool.Run(ctx)
}
