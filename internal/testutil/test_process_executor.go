/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
)

// ProcessExecution is a process "started" by the TestProcessExecutor.
type ProcessExecution struct {
	PID         process.Pid_t
	Cmd         *exec.Cmd
	StartedAt   time.Time
	ExitHandler process.ProcessExitHandler

	startWaitingChan chan struct{}
	stopped          chan struct{}
	stopOnce         sync.Once

	mu       sync.Mutex
	endedAt  time.Time
	exitCode int32
}

func (pe *ProcessExecution) Running() bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.endedAt.IsZero()
}

func (pe *ProcessExecution) ExitCode() int32 {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.exitCode
}

// Stopped returns a channel that is closed when the process is asked to stop.
// Simulated commands should return promptly once it is closed.
func (pe *ProcessExecution) Stopped() <-chan struct{} {
	return pe.stopped
}

// Stdin returns the standard input of the simulated process.
func (pe *ProcessExecution) Stdin() io.Reader {
	return pe.Cmd.Stdin
}

// Stdout returns the standard output of the simulated process.
func (pe *ProcessExecution) Stdout() io.Writer {
	return pe.Cmd.Stdout
}

// Stderr returns the standard error of the simulated process.
func (pe *ProcessExecution) Stderr() io.Writer {
	if pe.Cmd.Stderr == nil {
		return io.Discard
	}
	return pe.Cmd.Stderr
}

// ProcessSearchCriteria matches commands by executable name (or absolute path) and leading arguments.
type ProcessSearchCriteria struct {
	Command []string
	Cond    func(pe *ProcessExecution) bool
}

func (sc ProcessSearchCriteria) Matches(pe *ProcessExecution) bool {
	if len(sc.Command) == 0 {
		return false
	}

	cmdPath := sc.Command[0]
	if filepath.IsAbs(cmdPath) {
		if pe.Cmd.Path != cmdPath {
			return false
		}
	} else if filepath.Base(pe.Cmd.Path) != cmdPath && pe.Cmd.Path != cmdPath {
		return false
	}

	args := pe.Cmd.Args[1:]
	if len(args) < len(sc.Command)-1 || !slices.Equal(args[:len(sc.Command)-1], sc.Command[1:]) {
		return false
	}

	return sc.Cond == nil || sc.Cond(pe)
}

// AutoExecution simulates a command that matches the condition.
type AutoExecution struct {
	Condition ProcessSearchCriteria

	// RunCommand is called on its own goroutine once the process is "running".
	// It can use the standard streams of the process. The return value is the exit code.
	RunCommand func(pe *ProcessExecution) int32

	// If not nil, StartProcess fails with this error and RunCommand is not called.
	StartupError error
}

// TestProcessExecutor is a process.Executor that runs simulated commands in-process.
type TestProcessExecutor struct {
	nextPID        atomic.Int64
	executions     []*ProcessExecution
	autoExecutions []AutoExecution
	m              sync.Mutex
	lifetimeCtx    context.Context
}

func NewTestProcessExecutor(lifetimeCtx context.Context) *TestProcessExecutor {
	return &TestProcessExecutor{
		lifetimeCtx: lifetimeCtx,
	}
}

func (e *TestProcessExecutor) InstallAutoExecution(ae AutoExecution) {
	e.m.Lock()
	defer e.m.Unlock()
	e.autoExecutions = append(e.autoExecutions, ae)
}

func (e *TestProcessExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler process.ProcessExitHandler) (process.Pid_t, func(), error) {
	e.m.Lock()
	defer e.m.Unlock()

	pe := &ProcessExecution{
		PID:              process.Pid_t(e.nextPID.Add(1)),
		Cmd:              cmd,
		StartedAt:        time.Now(),
		ExitHandler:      handler,
		startWaitingChan: make(chan struct{}),
		stopped:          make(chan struct{}),
		exitCode:         process.UnknownExitCode,
	}

	var auto *AutoExecution
	for i := range e.autoExecutions {
		if e.autoExecutions[i].Condition.Matches(pe) {
			auto = &e.autoExecutions[i]
			break
		}
	}
	if auto != nil && auto.StartupError != nil {
		return process.UnknownPID, nil, auto.StartupError
	}

	e.executions = append(e.executions, pe)

	if auto != nil {
		runCommand := auto.RunCommand
		go func() {
			exitCode := runCommand(pe)
			e.finish(pe, exitCode, nil)
		}()
	}

	// Same as a real process: cancelling the context stops it, and it exits without an exit code.
	go func() {
		select {
		case <-ctx.Done():
			pe.stopOnce.Do(func() { close(pe.stopped) })
			if auto == nil {
				e.finish(pe, process.UnknownExitCode, ctx.Err())
			}
		case <-pe.stopped:
		case <-e.lifetimeCtx.Done():
		}
	}()

	startWaitingForExit := func() {
		e.m.Lock()
		defer e.m.Unlock()
		select {
		case <-pe.startWaitingChan:
		default:
			close(pe.startWaitingChan)
		}
	}

	return pe.PID, startWaitingForExit, nil
}

// StopProcess asks a simulated process to stop. Processes without an auto execution exit immediately.
func (e *TestProcessExecutor) StopProcess(pid process.Pid_t) error {
	pe, found := e.FindByPid(pid)
	if !found {
		return fmt.Errorf("no process with PID %d found: %w", pid, process.ErrorProcessNotFound)
	}

	pe.stopOnce.Do(func() { close(pe.stopped) })
	if !e.hasAutoExecution(pe) {
		e.finish(pe, process.UnknownExitCode, nil)
	}
	return nil
}

// SimulateProcessExit makes a process without an auto execution exit with the given code.
func (e *TestProcessExecutor) SimulateProcessExit(t *testing.T, pid process.Pid_t, exitCode int32) {
	pe, found := e.FindByPid(pid)
	require.True(t, found, "invalid PID %d (test issue)", pid)
	e.finish(pe, exitCode, nil)
}

func (e *TestProcessExecutor) FindByPid(pid process.Pid_t) (*ProcessExecution, bool) {
	e.m.Lock()
	defer e.m.Unlock()

	for _, pe := range e.executions {
		if pe.PID == pid {
			return pe, true
		}
	}
	return nil, false
}

// Executions returns all processes started so far.
func (e *TestProcessExecutor) Executions() []*ProcessExecution {
	e.m.Lock()
	defer e.m.Unlock()
	return slices.Clone(e.executions)
}

func (e *TestProcessExecutor) hasAutoExecution(pe *ProcessExecution) bool {
	e.m.Lock()
	defer e.m.Unlock()
	return slices.ContainsFunc(e.autoExecutions, func(ae AutoExecution) bool {
		return ae.StartupError == nil && ae.Condition.Matches(pe)
	})
}

// finish records the exit of a process and notifies the exit handler once waiting started.
// Only the first exit counts.
func (e *TestProcessExecutor) finish(pe *ProcessExecution, exitCode int32, exitErr error) {
	pe.mu.Lock()
	if !pe.endedAt.IsZero() {
		pe.mu.Unlock()
		return
	}
	pe.endedAt = time.Now()
	pe.exitCode = exitCode
	pe.mu.Unlock()

	if pe.ExitHandler == nil {
		return
	}

	go func() {
		select {
		case <-e.lifetimeCtx.Done():
		case <-pe.startWaitingChan:
			pe.ExitHandler.OnProcessExited(pe.PID, exitCode, exitErr)
		}
	}()
}

var _ process.Executor = (*TestProcessExecutor)(nil)
