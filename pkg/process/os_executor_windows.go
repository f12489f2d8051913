//go:build windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"errors"
	"fmt"
	"os"
)

// Windows has no signals, and there is no universal way to "ask a process to stop",
// so we just kill the process.
func (e *OSExecutor) stopSingleProcess(ws *waitState) error {
	proc := ws.cmd.Process

	e.log.V(1).Info("killing process", "pid", proc.Pid)
	err := proc.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
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

	err = proc.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("could not kill process %d: %w", pid, err)
	}
	return nil
}
