//go:build !windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

func (e *OSExecutor) stopSingleProcess(ws *waitState) error {
	proc := ws.cmd.Process

	// Give the process a chance to gracefully exit.
	// There is no established standard for what signals are used for graceful shutdown,
	// but SIGTERM is the most common one.
	err := e.signalAndWaitForExit(ws, proc, syscall.SIGTERM)
	switch {
	case err == nil:
		e.log.V(1).Info("process stopped by SIGTERM", "pid", proc.Pid)
		return nil
	case !errors.Is(err, context.DeadlineExceeded):
		return err
	}

	err = e.signalAndWaitForExit(ws, proc, syscall.SIGKILL)
	switch {
	case err == nil:
		e.log.V(1).Info("process stopped by SIGKILL", "pid", proc.Pid)
		return nil
	default:
		return err
	}
}

// Sends a given signal to a process and waits for it to exit.
// If the process does not exit within the stop timeout, the function returns context.DeadlineExceeded.
func (e *OSExecutor) signalAndWaitForExit(ws *waitState, proc *os.Process, sig syscall.Signal) error {
	err := proc.Signal(sig)
	switch {
	case errors.Is(err, os.ErrProcessDone):
		return nil
	case err != nil:
		return fmt.Errorf("could not send signal %s to process %d: %w", sig.String(), proc.Pid, err)
	}

	return e.waitForExit(ws)
}

func killProcess(pid Pid_t) error {
	osPid, err := PidT_ToInt(pid)
	if err != nil {
		return err
	}

	proc, err := os.FindProcess(osPid)
	if err != nil {
		return nil
	}

	err = proc.Signal(syscall.SIGKILL)
	if err != nil && !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("could not kill process %d: %w", pid, err)
	}
	return nil
}
