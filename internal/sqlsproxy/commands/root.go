/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	cmds "github.com/MrTomatePNG/zed-sqls-extension/internal/commands"
	"github.com/MrTomatePNG/zed-sqls-extension/internal/sqlsproxy"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/logger"
)

// ServerExitError is returned when the language server exited with a non-zero exit code.
// The proxy exits with the same code.
type ServerExitError struct {
	ExitCode int32
}

func (e *ServerExitError) Error() string {
	return fmt.Sprintf("language server exited with code %d", e.ExitCode)
}

// InvocationError is returned when the command line or the configuration it describes is invalid.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invalid invocation: %v", e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

type rootOptions struct {
	config  sqlsproxy.Config
	monitor cmds.MonitorFlags

	// Overridable for tests.
	streams sqlsproxy.IO
}

func NewRootCommand(log *logger.Logger) *cobra.Command {
	return newRootCommand(log, sqlsproxy.IO{In: os.Stdin, Out: os.Stdout, Stderr: os.Stderr})
}

func newRootCommand(log *logger.Logger, streams sqlsproxy.IO) *cobra.Command {
	opts := &rootOptions{
		config:  sqlsproxy.ConfigFromEnvironment(),
		streams: streams,
	}

	rootCmd := &cobra.Command{
		Use:   "sqls-proxy [flags] [-- server-args...]",
		Short: "Runs the sqls language server behind an intercepting protocol proxy",
		Long: `Runs the sqls language server behind an intercepting protocol proxy.

The proxy talks to the editor over standard input and output, starts the language server,
and forwards messages in both directions. Cancel requests are not forwarded to the server,
and workspace settings from a YAML file are injected into the initialize request.
The proxy exits with the exit code of the language server.`,
		SilenceErrors:    true,
		SilenceUsage:     true,
		Args:             cobra.ArbitraryArgs,
		PersistentPreRun: cmds.LogVersion(log.Logger, "Starting sqls-proxy..."),
		RunE:             runProxy(log.Logger, opts),
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &InvocationError{Err: err}
	})

	log.AddLevelFlag(rootCmd.PersistentFlags())

	flags := rootCmd.Flags()
	flags.StringVar(&opts.config.ServerPath, "server", opts.config.ServerPath, "Path of the language server executable.")
	flags.BoolVar(&opts.config.ServerTrace, "server-trace", opts.config.ServerTrace, "Make the language server log protocol traffic to standard error.")
	flags.StringVar(&opts.config.InitOptionsFile, "init-options", opts.config.InitOptionsFile, "YAML file with sqls settings to send as initialization options. Ignored if it does not exist.")
	flags.BoolVar(&opts.config.WatchInitOptions, "watch-init-options", opts.config.WatchInitOptions, "Send changes of the initialization options file to the running language server.")
	flags.StringVar(&opts.config.TraceFile, "trace-file", opts.config.TraceFile, "If present, write a JSON line for every message observed by the interception rules to this file.")
	flags.IntVar(&opts.config.TraceMaxSizeMB, "trace-max-size", opts.config.TraceMaxSizeMB, "Size in megabytes at which the trace file is rotated.")
	flags.DurationVar(&opts.config.StopTimeout, "stop-timeout", opts.config.StopTimeout, "How long the language server gets to exit after being asked to stop, before it is killed.")
	flags.DurationVar(&opts.config.DrainTimeout, "drain-timeout", opts.config.DrainTimeout, "How long to keep forwarding language server output after it exits.")
	flags.IntVar(&opts.config.MaxContentLength, "max-content-length", 0, "Largest accepted message body in bytes. Zero means no limit.")
	cmds.AddMonitorFlags(flags, &opts.monitor)

	rootCmd.AddCommand(cmds.NewVersionCommand(log.Logger))
	rootCmd.AddCommand(newCheckCommand(log.Logger))

	return rootCmd
}

func runProxy(log logr.Logger, opts *rootOptions) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log = log.WithName("sqls-proxy")

		opts.config.ServerArgs = append(opts.config.ServerArgs, args...)
		if configErr := opts.config.Validate(); configErr != nil {
			log.Error(configErr, "Invocation parameters are invalid")
			return &InvocationError{Err: configErr}
		}

		ctx, cancel := cmds.Monitor(cmd.Context(), opts.monitor, log)
		defer cancel()

		streams := opts.streams
		if streams.Stderr == nil {
			streams.Stderr = io.Discard
		}

		exitCode, runErr := sqlsproxy.Run(ctx, opts.config, streams, log)
		if runErr != nil {
			return runErr
		}
		if exitCode != 0 {
			return &ServerExitError{ExitCode: exitCode}
		}
		return nil
	}
}
