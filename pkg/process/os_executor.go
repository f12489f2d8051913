/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// DefaultStopTimeout is how long a process is given to exit after a graceful stop request
// before it is killed.
const DefaultStopTimeout = 5 * time.Second

// ErrorProcessNotFound is returned when stopping a process the executor does not know about.
var ErrorProcessNotFound = errors.New("process does not exist")

type waitState struct {
	cmd         *exec.Cmd     // The command that started the process
	waitEndedCh chan struct{} // A channel that gets closed when the wait ends
	waitErr     error         // The error returned by the wait function, if any
	waiting     bool          // Whether the wait goroutine has been started
	stopping    bool          // Whether somebody already took responsibility for stopping the process
}

type OSExecutor struct {
	// StopTimeout is how long to wait for the process to exit after each stop signal.
	StopTimeout time.Duration

	procsWaiting map[Pid_t]*waitState
	lock         sync.Mutex
	log          logr.Logger
}

func NewOSExecutor(log logr.Logger) *OSExecutor {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &OSExecutor{
		StopTimeout:  DefaultStopTimeout,
		procsWaiting: make(map[Pid_t]*waitState),
		log:          log.WithName("os-executor"),
	}
}

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler ProcessExitHandler) (Pid_t, func(), error) {
	if err := cmd.Start(); err != nil {
		return UnknownPID, nil, err
	}

	pid, err := IntToPidT(cmd.Process.Pid)
	if err != nil {
		return UnknownPID, nil, err
	}

	ws := &waitState{
		cmd:         cmd,
		waitEndedCh: make(chan struct{}),
	}

	e.lock.Lock()
	e.procsWaiting[pid] = ws
	e.lock.Unlock()

	// Start the goroutine that waits for the context to expire.
	go func() {
		select {

		case <-ws.waitEndedCh:
			// The process exited before the context expired.
			if handler != nil {
				exitCode, execErr := getProcessExecResult(ws.waitErr, cmd)
				handler.OnProcessExited(pid, exitCode, errors.Join(ctx.Err(), execErr))
			}

		case <-ctx.Done():
			var stopErr error
			if e.takeStopResponsibility(ws) {
				stopErr = e.stopProcessInternal(pid, ws)
				if stopErr != nil {
					if handler != nil {
						// Let the caller know that the process did not stop upon context expiration
						handler.OnProcessExited(pid, UnknownExitCode, errors.Join(stopErr, ctx.Err()))
					}

					// There is no point waiting for the result if the process could not be stopped and we reported the error.
					break
				}
			}

			<-ws.waitEndedCh

			if handler != nil {
				exitCode, execErr := getProcessExecResult(ws.waitErr, cmd)
				handler.OnProcessExited(pid, exitCode, errors.Join(execErr, ctx.Err()))
			}
		}

		e.lock.Lock()
		delete(e.procsWaiting, pid)
		e.lock.Unlock()
	}()

	startWaitingForProcessExit := func() {
		e.startWaiting(ws)
	}

	return pid, startWaitingForProcessExit, nil
}

func (e *OSExecutor) StopProcess(pid Pid_t) error {
	e.lock.Lock()
	ws, found := e.procsWaiting[pid]
	e.lock.Unlock()

	if !found {
		return fmt.Errorf("could not stop process %d: %w", pid, ErrorProcessNotFound)
	}

	if !e.takeStopResponsibility(ws) {
		// Somebody else is stopping the process, just wait for it to exit.
		e.startWaiting(ws)
		<-ws.waitEndedCh
		return nil
	}

	return e.stopProcessInternal(pid, ws)
}

// Starts the goroutine that waits for the process, unless it is already running.
func (e *OSExecutor) startWaiting(ws *waitState) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if ws.waiting {
		return
	}
	ws.waiting = true

	go func() {
		waitErr := ws.cmd.Wait()

		e.lock.Lock()
		ws.waitErr = waitErr
		e.lock.Unlock()

		close(ws.waitEndedCh)
	}()
}

// Returns true if the caller is the first one to ask for the process to be stopped,
// and thus IT is the caller that must stop the process.
func (e *OSExecutor) takeStopResponsibility(ws *waitState) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	if ws.stopping {
		return false
	}
	ws.stopping = true
	return true
}

func (e *OSExecutor) stopProcessInternal(pid Pid_t, ws *waitState) error {
	e.startWaiting(ws)

	// Capture the children before the root goes away; they would be re-parented afterwards.
	var children []Pid_t
	tree, treeErr := GetProcessTree(pid)
	if treeErr != nil {
		e.log.V(1).Info("could not get process tree", "root", pid, "error", treeErr.Error())
	} else {
		children = tree[1:] // The root is stopped separately
	}

	e.log.V(1).Info("stopping process", "root", pid, "children", children)

	stopErr := e.stopSingleProcess(ws)
	if stopErr != nil {
		e.log.Error(stopErr, "could not stop root process", "root", pid)
		return stopErr
	}

	var childErrors []error
	for _, child := range children {
		if childErr := killProcess(child); childErr != nil {
			childErrors = append(childErrors, childErr)
		}
	}
	if len(childErrors) > 0 {
		return fmt.Errorf("some children processes could not be stopped: %w", errors.Join(childErrors...))
	}

	return nil
}

// Waits for the process to exit, up to the stop timeout.
// Returns context.DeadlineExceeded if the process is still running.
func (e *OSExecutor) waitForExit(ws *waitState) error {
	timeout := e.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ws.waitEndedCh:
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

// Returns the process execution error and process exit code depending on the result of command wait call.
func getProcessExecResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	var ee *exec.ExitError
	if waitErr == nil {
		return int32(cmd.ProcessState.ExitCode()), nil
	} else if errors.As(waitErr, &ee) {
		return int32(ee.ExitCode()), nil
	} else {
		return UnknownExitCode, waitErr
	}
}

var _ Executor = (*OSExecutor)(nil)
