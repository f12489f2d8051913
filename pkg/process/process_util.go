/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"time"

	ps "github.com/shirou/gopsutil/v4/process"
)

// Returns the list of IDs for a given process and its children.
// The list is ordered starting with the root of the hierarchy, then the children, then the grandchildren etc.
func GetProcessTree(rootPid Pid_t) ([]Pid_t, error) {
	osPid, err := PidT_ToInt32(rootPid)
	if err != nil {
		return nil, err
	}

	root, err := ps.NewProcess(osPid)
	if err != nil {
		if errors.Is(err, ps.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("process with pid %d does not exist: %w", rootPid, ErrorProcessNotFound)
		}
		return nil, err
	}

	tree := []Pid_t{}
	next := []*ps.Process{root}

	for len(next) > 0 {
		current := next[0]
		next = next[1:]
		tree = append(tree, Pid_t(current.Pid))

		children, childrenErr := current.Children()
		if childrenErr != nil {
			// If we fail to get the children, assume there are no children.
			children = []*ps.Process{}
		}

		next = append(next, children...)
	}

	return tree, nil
}

// DefaultPollInterval is how often WaitForProcessExit checks whether a process is still running.
const DefaultPollInterval = time.Second

// Waits for a process that is not a child of the current process to exit, by polling.
// Returns nil when the process is gone, or the context error if the context is done first.
func WaitForProcessExit(ctx context.Context, pid Pid_t, pollInterval time.Duration) error {
	osPid, err := PidT_ToInt32(pid)
	if err != nil {
		return err
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		exists, existsErr := ps.PidExistsWithContext(ctx, osPid)
		if existsErr != nil && ctx.Err() == nil {
			return fmt.Errorf("could not check whether process %d is running: %w", pid, existsErr)
		}
		if existsErr == nil && !exists {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Runs the command as a child process to completion.
// Returns exit code, or error if the process could not be started/tracked for some reason.
//
// The context parameter is used to request cancellation of the process, but the call to RunToCompletion() will not return
// until the process exits.
func RunToCompletion(ctx context.Context, executor Executor, cmd *exec.Cmd) (int32, error) {
	peh, pic := ExitInfoChannel()

	_, startWaitForProcessExit, err := executor.StartProcess(ctx, cmd, peh)
	if err != nil {
		return UnknownExitCode, err
	}

	startWaitForProcessExit()

	// Only exit when the process exit--do not exit merely because the context is cancelled.
	exitInfo := <-pic
	return exitInfo.ExitCode, exitInfo.Err
}

func IntToPidT(val int) (Pid_t, error) {
	return convertPid[int, Pid_t](val)
}

func PidT_ToInt(val Pid_t) (int, error) {
	return convertPid[Pid_t, int](val)
}

func PidT_ToInt32(val Pid_t) (int32, error) {
	if val < 0 || val > math.MaxInt32 {
		return 0, fmt.Errorf("value %d is out of range of valid process ID values", val)
	}
	return int32(val), nil
}

func convertPid[From ~int64 | ~int, To ~int64 | ~int](val From) (To, error) {
	outOfRange := val < 0 || int64(val) > math.MaxUint32
	if outOfRange {
		return 0, fmt.Errorf("value %d is out of range of valid process ID values", val)
	}
	return To(val), nil
}
