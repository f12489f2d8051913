/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/sqlsproxy"
)

type checkOptions struct {
	config  sqlsproxy.Config
	timeout time.Duration
}

func newCheckCommand(log logr.Logger) *cobra.Command {
	opts := &checkOptions{
		config:  sqlsproxy.ConfigFromEnvironment(),
		timeout: sqlsproxy.DefaultCheckTimeout,
	}

	checkCmd := &cobra.Command{
		Use:   "check [flags] [-- server-args...]",
		Short: "Verifies that the language server can be started",
		Long: `Verifies that the language server can be started.

	Runs the language server once with --version (or with the given arguments) and prints its output.
	Exits with the exit code of the language server.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode, checkErr := sqlsproxy.CheckServer(cmd.Context(), opts.config, args, opts.timeout, cmd.OutOrStdout(), log.WithName("check"))
			if checkErr != nil {
				return checkErr
			}
			if exitCode != 0 {
				return &ServerExitError{ExitCode: exitCode}
			}
			return nil
		},
	}

	flags := checkCmd.Flags()
	flags.StringVar(&opts.config.ServerPath, "server", opts.config.ServerPath, "Path of the language server executable.")
	flags.DurationVar(&opts.timeout, "timeout", opts.timeout, "How long the language server may run before it is stopped.")

	return checkCmd
}
