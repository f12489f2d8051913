/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	cmdutil "github.com/MrTomatePNG/zed-sqls-extension/internal/commands"
	"github.com/MrTomatePNG/zed-sqls-extension/internal/sqlsproxy/commands"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/logger"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/osutil"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/resiliency"
)

const (
	errCommandError = 1
	errSetup        = 2
	errPanic        = 3
)

func main() {
	log := logger.New("sqls-proxy")
	defer func() {
		panicErr := resiliency.MakePanicError(recover(), log.Logger, "sqls-proxy terminated due to a panic")
		if panicErr != nil {
			_, _ = os.Stderr.Write(osutil.WithNewline([]byte(panicErr.Error())))
			log.Flush()
			os.Exit(errPanic)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := commands.NewRootCommand(log)
	err := root.ExecuteContext(ctx)
	stop()

	var serverExit *commands.ServerExitError
	var invocationErr *commands.InvocationError
	switch {
	case errors.As(err, &invocationErr):
		cmdutil.ErrorExit(log, err, errSetup)
	case errors.As(err, &serverExit):
		log.V(1).Info("Language server exited with non-zero code", "exitCode", serverExit.ExitCode)
		log.Flush()
		os.Exit(int(serverExit.ExitCode))
	case err != nil:
		cmdutil.ErrorExit(log, err, errCommandError)
	default:
		log.Flush()
	}
}
