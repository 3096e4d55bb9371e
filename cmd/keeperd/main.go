// Command keeperd boots the circlekeeper supervisor: it loads the
// configuration file, wires the schedule and gateway, and serves the
// HTTP/JSON query API, grounded on example/example.go's main() shape and a
// standard spf13/cobra root command.
package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/hwio/circlekeeper/config"
	"github.com/hwio/circlekeeper/httpapi"
	"github.com/hwio/circlekeeper/supervisor"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("keeperd: fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
		tickEvery  time.Duration
		ntpEvery   time.Duration
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "keeperd",
		Short: "keeperd drives scheduled mains-power relays from a TOML configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				configPath: configPath,
				listenAddr: listenAddr,
				tracker: supervisor.Options{
					TickInterval:    tickEvery,
					NTPPollInterval: ntpEvery,
				},
				seed: seed,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "circlekeeper.toml", "path to the TOML configuration file")
	cmd.Flags().StringVar(&listenAddr, "listen", ":8980", "HTTP query API listen address")
	cmd.Flags().DurationVar(&tickEvery, "tick-interval", supervisor.DefaultOptions.TickInterval, "supervisor tick cadence")
	cmd.Flags().DurationVar(&ntpEvery, "ntp-poll-interval", supervisor.DefaultOptions.NTPPollInterval, "NTP re-sync cadence")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for Fuzzy/jitter randomness (0 picks a random seed)")

	return cmd
}

type runOptions struct {
	configPath string
	listenAddr string
	tracker    supervisor.Options
	seed       int64
}

func run(ctx context.Context, opts runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	slog.Info("keeperd: configuration loaded", "circles", len(cfg.Circles), "config", opts.configPath)

	seed := opts.seed
	if seed == 0 {
		seed = int64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed>>32)|1))

	tracker, err := supervisor.New(cfg, rng, opts.tracker)
	if err != nil {
		return err
	}

	go tracker.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	mux := httpapi.New(tracker.Client()).Register(gin.New())

	server := &http.Server{Addr: opts.listenAddr, Handler: mux}
	go func() {
		slog.Info("keeperd: listening", "addr", opts.listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("keeperd: http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("keeperd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("keeperd: http shutdown error", "error", err)
	}
	if err := tracker.Client().Teardown(shutdownCtx); err != nil {
		slog.Warn("keeperd: supervisor teardown error", "error", err)
	}

	return nil
}
