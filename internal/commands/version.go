/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/version"
)

const (
	// If set, the value of this variable will be written to the log as one of the first log messages.
	SQLS_PROXY_LOGGING_CONTEXT = "SQLS_PROXY_LOGGING_CONTEXT"
)

func NewVersionCommand(log logr.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long:  `Prints version information.`,
		RunE:  getVersion(log),
		Args:  cobra.NoArgs,
	}
}

func getVersion(log logr.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		versionStr, err := versionString()
		if err != nil {
			log.WithName("version").Error(err, "Could not serialize version information")
			return err
		}

		// The version command does not run a session, so standard output is free to use.
		_, err = fmt.Fprintln(cmd.OutOrStdout(), versionStr)
		return err
	}
}

func LogVersion(log logr.Logger, programStartMsg string) func(_ *cobra.Command, _ []string) {
	return func(_ *cobra.Command, _ []string) {
		versionString, err := versionString()
		if err != nil {
			versionString = fmt.Sprintf("unknown: %v", err)
		}

		launchPath, pathErr := os.Executable()
		if pathErr != nil {
			launchPath = os.Args[0]
		}

		log.V(1).Info(programStartMsg,
			"PID", os.Getpid(),
			"Exe", launchPath,
			"Args", os.Args[1:],
			"Version", versionString,
		)

		logContext, found := os.LookupEnv(SQLS_PROXY_LOGGING_CONTEXT)
		if found && len(logContext) > 0 {
			log.V(1).Info(logContext)
		}
	}
}

func versionString() (string, error) {
	if versionJSON, err := json.Marshal(version.Version()); err != nil {
		return "", err
	} else {
		return string(versionJSON), nil
	}
}
