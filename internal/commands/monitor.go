/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
)

const (
	monitorFlagName         = "monitor"
	monitorIntervalFlagName = "monitor-interval"
)

type MonitorFlags struct {
	Pid      int64
	Interval time.Duration
}

// AddMonitorFlags adds the flags that tie the lifetime of the command to another process (usually the editor).
func AddMonitorFlags(fs *pflag.FlagSet, mf *MonitorFlags) {
	fs.Int64VarP(&mf.Pid, monitorFlagName, "m", int64(process.UnknownPID), "If present, monitor the given process ID (PID) and shut down gracefully when it exits.")
	fs.DurationVar(&mf.Interval, monitorIntervalFlagName, process.DefaultPollInterval, "How often to check whether the monitored process is still running.")
}

// Monitor returns a context that is cancelled when the monitored process exits.
// If no process is monitored, the passed context is returned unchanged.
func Monitor(ctx context.Context, mf MonitorFlags, log logr.Logger) (context.Context, context.CancelFunc) {
	if mf.Pid == int64(process.UnknownPID) {
		return ctx, func() {}
	}

	monitorCtx, monitorCtxCancel := context.WithCancel(ctx)
	pid := process.Pid_t(mf.Pid)

	go func() {
		defer monitorCtxCancel()
		waitErr := process.WaitForProcessExit(monitorCtx, pid, mf.Interval)
		switch {
		case waitErr == nil:
			log.Info("Monitored process exited, shutting down", "pid", pid)
		case errors.Is(waitErr, context.Canceled):
			log.V(1).Info("Monitoring cancelled by context", "pid", pid)
		default:
			log.Error(waitErr, "Error waiting for monitored process, shutting down", "pid", pid)
		}
	}()

	return monitorCtx, monitorCtxCancel
}
