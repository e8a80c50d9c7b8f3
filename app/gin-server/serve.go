package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and realtime channel",
	RunE:  runServe,
}

// Flags
var (
	serveWorkers         bool
	serveShutdownTimeout time.Duration
)

func init() {
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", false, "Also run the turn worker pool in this process")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "Grace period for in-flight requests and turns")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load()
	if err != nil {
		return err
	}
	if settings.LogLevel != "debug" && settings.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := a.HTTPServer()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if serveWorkers {
		pool, err := a.WorkerPool()
		if err != nil {
			return err
		}
		g.Go(func() error { return pool.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)

		// hijacked websocket turns are not tracked by Shutdown
		done := make(chan struct{})
		go func() {
			a.Hub.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			a.Log.Warn("in-flight turns did not finish before shutdown")
		}
		return err
	})

	return g.Wait()
}
