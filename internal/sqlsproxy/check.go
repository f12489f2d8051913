/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package sqlsproxy

import (
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/lsp"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
)

const (
	// Makes sqls print its version and exit.
	serverVersionArg = "--version"

	DefaultCheckTimeout = 10 * time.Second
)

// CheckServer runs the language server once, without the proxy, and copies its output to out.
// With no arguments the server is asked for its version.
// Returns the exit code of the server, or a *lsp.SubprocessError if it could not be run.
func CheckServer(ctx context.Context, config Config, args []string, timeout time.Duration, out io.Writer, log logr.Logger) (int32, error) {
	if config.ServerPath == "" {
		return process.UnknownExitCode, ErrNoServerPath
	}
	if len(args) == 0 {
		args = []string{serverVersionArg}
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executor := process.NewOSExecutor(log)
	executor.StopTimeout = config.StopTimeout

	cmd := exec.Command(config.ServerPath, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	log.V(1).Info("Checking language server", "command", config.ServerPath, "args", args)
	exitCode, runErr := process.RunToCompletion(checkCtx, executor, cmd)
	if runErr != nil {
		return exitCode, &lsp.SubprocessError{Path: config.ServerPath, Err: runErr}
	}
	return exitCode, nil
}
