// Command trainer fits forecast predictors offline and stores them as
// artifacts for the API server's artifact provider.
//
//	trainer fit                       # train every recursive variant once
//	trainer fit outdoor indoor-full   # train selected variants
//	trainer dataset outdoor -o out.csv
//	trainer schedule --every 60m      # retrain periodically until stopped
//
// It shares the server's configuration: every server flag and environment
// variable is accepted. Use STORAGE=redis so the server sees the artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Phantawat/BreatheEasy/cmd/forecaster/config"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/logger"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/metrics"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/setup"
	"github.com/Phantawat/BreatheEasy/pkg/httpx"
)

var version = "dev"

// env is the state shared by all subcommands once flags are parsed.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{cfg: config.Defaults()}

	root := &cobra.Command{
		Use:           "trainer",
		Short:         "Train BreatheEasy forecast predictors",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := e.cfg.Finish(); err != nil {
				return err
			}
			if err := e.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			e.logger = logger.New(e.cfg)
			slog.SetDefault(e.logger)
			e.metrics = metrics.New(nil)
			return nil
		},
	}

	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)
	e.cfg.RegisterFlags(fs)
	root.PersistentFlags().AddGoFlagSet(fs)

	root.AddCommand(fitCmd(e))
	root.AddCommand(datasetCmd(e))
	root.AddCommand(scheduleCmd(e))
	return root
}

// build assembles the runtime for one subcommand invocation.
func (e *env) build(ctx context.Context) (*setup.App, error) {
	return setup.Build(ctx, e.cfg, e.logger, e.metrics)
}

func fitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "fit [variant...]",
		Short: "Train variants once and save their artifacts",
		Long: `Fits a fresh predictor for each named variant (all recursive variants
when none are named) on the current history and saves it as the variant's
latest artifact.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			names, err := selectVariants(app.Variants, args)
			if err != nil {
				return err
			}
			ids, err := trainAll(cmd.Context(), app.Service, app.Store, names, e.logger, e.metrics.RecordArtifact)
			for _, name := range names {
				if id, ok := ids[name]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, id)
				}
			}
			return err
		},
	}
}

func datasetCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dataset <variant>",
		Short: "Export a variant's lag-feature training set as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ds, err := app.Service.Dataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writeDataset(w, ds); err != nil {
				return err
			}
			e.logger.Info("dataset exported", "variant", args[0], "pairs", ds.Len(), "features", ds.Layout.Width())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "Output file (- for stdout)")
	return cmd
}

func scheduleCmd(e *env) *cobra.Command {
	var (
		every         time.Duration
		metricsListen string
	)
	cmd := &cobra.Command{
		Use:   "schedule [variant...]",
		Short: "Retrain variants periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < MinInterval {
				return fmt.Errorf("--every must be at least %s, got %s", MinInterval, every)
			}
			ctx := cmd.Context()
			app, err := e.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			names, err := selectVariants(app.Variants, args)
			if err != nil {
				return err
			}

			sched := NewScheduler(every, func(ctx context.Context) error {
				_, err := trainAll(ctx, app.Service, app.Store, names, e.logger, e.metrics.RecordArtifact)
				return err
			}, e.logger)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			if metricsListen != "" {
				mux := http.NewServeMux()
				mux.Handle("GET /metrics", promhttp.Handler())
				mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(app.Ping))
				srv := httpx.NewServer(metricsListen, mux, e.logger)
				go func() {
					if err := srv.Start(); err != nil {
						e.logger.Error("metrics server failed", "error", err)
					}
				}()
				defer func() {
					if err := srv.Stop(5 * time.Second); err != nil {
						e.logger.Error("metrics server shutdown failed", "error", err)
					}
				}()
			}

			<-ctx.Done()
			e.logger.Info("received shutdown signal, stopping scheduler")
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", time.Hour, "Retrain interval (at least 1m)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve /metrics and /healthz on this address while scheduling")
	return cmd
}
