package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ensemble/internal/actors"
	"ensemble/internal/cast"
	"ensemble/internal/core"
)

const (
	ExitSuccess      = 0
	ExitAborted      = 1
	ExitConfigError  = 2
	defaultLogLevel  = "info"
	outputFormatText = "text"
	outputFormatJSON = "json"
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: ExitConfigError, err: err}
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:           "ensemble",
		Short:         "ensemble runs phase-synchronised load-generation workloads.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return usageError(err)
			}
			configureLogging(level)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level: trace, debug, info, warn, error")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.AddCommand(
		runCmd(),
		validateCmd(),
		listActorsCmd(),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := RootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, core.ErrInvalidConfiguration) {
		return ExitConfigError
	}
	return ExitAborted
}

func configureLogging(level log.Level) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
}

// builtinCast returns the frozen registry of built-in actor types.
func builtinCast() (*cast.Cast, error) {
	c := cast.New()
	if err := actors.RegisterAll(c); err != nil {
		return nil, err
	}
	c.Freeze()
	return c, nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
