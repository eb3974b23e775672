package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ensemble/internal/collector"
	"ensemble/internal/config"
	"ensemble/internal/coordinator"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/progress"
	"ensemble/internal/workload"
)

type runOptions struct {
	output      string
	quiet       bool
	timeout     time.Duration
	metricsFile string
}

func runCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run WORKLOAD.yml",
		Short: "Run a workload and print a summary",
		Args:  exactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != outputFormatText && opts.output != outputFormatJSON {
				return usageError(fmt.Errorf("--output must be %q or %q, got %q", outputFormatText, outputFormatJSON, opts.output))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorkload(ctx, args[0], opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", outputFormatText, "output format: text, json")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "suppress progress logging during the run")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the workload after this long (0 = no limit)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when the run ends")
	return cmd
}

func runWorkload(ctx context.Context, path string, opts *runOptions, out io.Writer) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return usageError(err)
	}

	runID := uuid.New().String()
	logger := log.WithField("run", runID)

	registry, err := builtinCast()
	if err != nil {
		return err
	}
	col := collector.NewCollector()
	o := orchestrator.New()
	wc, err := workload.NewContext(cfg, o, registry, col, workload.WithLogger(logger))
	if err != nil {
		col.Close()
		return usageError(err)
	}

	runCtx := ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	prog := progress.NewProgress(col, o, opts.quiet)
	prog.SetLogger(logger.WithField("component", "progress"))
	prog.Printf("workload %s starting: %d actors, %d phases", path, len(wc.Actors()), cfg.PhaseCount())
	prog.Start()

	runErr := coordinator.New(o, col).Run(runCtx, wc.Actors())

	prog.Stop()
	col.Close()

	m := col.Compute()
	m.RunID = runID
	if opts.output == outputFormatJSON {
		if err := collector.FormatJSON(out, m); err != nil {
			return errors.Wrap(err, "writing summary")
		}
	} else {
		collector.FormatText(out, m)
	}
	if opts.metricsFile != "" {
		if err := col.WriteMetricsFile(opts.metricsFile); err != nil {
			return errors.Wrap(err, "writing metrics file")
		}
		logger.WithField("path", opts.metricsFile).Debug("metrics written")
	}
	if dropped := col.DroppedEvents(); dropped > 0 {
		logger.WithField("dropped", dropped).Warn("events dropped; summary is incomplete")
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		logger.Warn("workload interrupted")
		return nil
	case errors.Is(runErr, context.DeadlineExceeded):
		return &exitError{code: ExitAborted, err: errors.Wrapf(runErr, "workload did not finish within %v", opts.timeout)}
	case errors.Is(runErr, core.ErrInvalidConfiguration):
		return &exitError{code: ExitConfigError, err: runErr}
	default:
		return &exitError{code: ExitAborted, err: errors.Wrap(runErr, "workload aborted")}
	}
}
