package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pveith/trix/internal/config"
	"github.com/pveith/trix/internal/dispatch"
	"github.com/pveith/trix/internal/engine"
	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/matcher"
	"github.com/pveith/trix/internal/queue"
	"github.com/pveith/trix/internal/server"
	"github.com/pveith/trix/internal/sink"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/internal/tracker"
	"github.com/pveith/trix/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trix daemon in the foreground",
	Long:  `Starts the event processing daemon: the push endpoint, the fallback poller and the sink worker pool.`,
	Run: func(cmd *cobra.Command, args []string) {
		runForeground(getConfigPath())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runForeground wires the daemon together and blocks until a shutdown signal.
func runForeground(configPath string) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration from '%s': %v\n", configPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Application, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.L()
	log.Info("Trix daemon starting", "database", cfg.Application.DatabasePath)

	st, err := store.Open(cfg.Application.DatabasePath)
	if err != nil {
		log.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	jobs := queue.NewJobQueue(cfg.Application.QueueCapacity, "")
	sinks := sink.NewRegistry(
		sink.NewWebhook(http.DefaultClient),
		sink.NewNotify(http.DefaultClient, cfg.Sinks.NotifyURL),
		sink.NewTool(),
	)
	runner := dispatch.NewRunner(st, sinks, cfg.Application.ActionTimeout.Duration, &cfg.Application.DefaultRetry)
	pool := worker.NewPool(cfg.Application.MaxConcurrency, jobs, runner)

	trk := tracker.New(st)
	eng := engine.New(st, trk, matcher.New(st), dispatch.NewDispatcher(st, jobs))

	httpServer := server.NewHTTPServer(cfg.Application.ListenAddr, eng)
	poller := tracker.NewPoller(st, eng, cfg.Poller)

	log.Info("Starting services")
	if err := jobs.Start(); err != nil {
		log.Error("Failed to start job queue", "error", err)
		os.Exit(1)
	}
	pool.Start()
	httpServer.Start()
	poller.Start()
	log.Info("All services started")

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopChan
	log.Info("Received shutdown signal", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop order: supply paths first so no new work is admitted, then the
	// workers draining the queue, then the queue itself.
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", "error", err)
	}
	poller.Stop()
	pool.Stop()
	if err := jobs.Stop(); err != nil {
		log.Error("Error stopping job queue", "error", err)
	}

	log.Info("Trix daemon shut down gracefully")
}
