/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/go-logr/logr"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
)

// ServerConfig describes how to start the language server.
type ServerConfig struct {
	// Path is the executable to run. It is looked up in PATH if it contains no path separators.
	Path string

	// Args are the arguments passed to the server.
	Args []string

	// Env, if not nil, replaces the environment of the server.
	Env []string

	// Dir is the working directory of the server. Empty means the current directory.
	Dir string

	// Stderr receives the raw standard error output of the server. If nil, os.Stderr is used.
	Stderr io.Writer
}

// LaunchedServer represents a running language server process.
type LaunchedServer struct {
	// Stdin is the write end of the server's standard input.
	Stdin io.WriteCloser

	// Stdout is the read end of the server's standard output.
	Stdout io.ReadCloser

	pid      process.Pid_t
	executor process.Executor

	// The child ends of the pipes, closed once the process exits.
	childEnds []io.Closer

	// done is closed when the process has exited.
	done chan struct{}

	// exitCode and exitErr are valid once done is closed.
	exitCode int32
	exitErr  error
	mu       sync.Mutex
}

// Pid returns the process ID of the server.
func (ls *LaunchedServer) Pid() process.Pid_t {
	return ls.pid
}

// Done returns a channel that is closed when the server process exits.
func (ls *LaunchedServer) Done() <-chan struct{} {
	return ls.done
}

// Wait blocks until the server process exits and returns the error reported for the exit, if any.
func (ls *LaunchedServer) Wait() error {
	<-ls.done
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.exitErr
}

// ExitCode returns the process exit code, or process.UnknownExitCode if the process
// has not exited yet or its exit code could not be determined (e.g. it was killed by a signal).
func (ls *LaunchedServer) ExitCode() int32 {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.exitCode
}

// Stop asks the executor to stop the server.
// Usually not needed: the server is stopped when the context passed to LaunchServer is cancelled.
func (ls *LaunchedServer) Stop() error {
	if ls.executor == nil || ls.pid == process.UnknownPID {
		return nil
	}
	err := ls.executor.StopProcess(ls.pid)
	if errors.Is(err, process.ErrorProcessNotFound) {
		// Already gone.
		return nil
	}
	return err
}

// Close closes the proxy's ends of the server pipes. It does NOT stop the process.
func (ls *LaunchedServer) Close() error {
	return errors.Join(
		ignoreClosed(ls.Stdin.Close()),
		ignoreClosed(ls.Stdout.Close()),
	)
}

func (ls *LaunchedServer) onExited(log logr.Logger) process.ProcessExitHandler {
	return process.ProcessExitHandlerFunc(func(pid process.Pid_t, exitCode int32, err error) {
		ls.mu.Lock()
		ls.exitCode = exitCode
		ls.exitErr = err
		ls.mu.Unlock()

		// Lets the proxy read the remaining output up to EOF, and fails writes to the dead process.
		closeAll(ls.childEnds...)
		close(ls.done)

		if err != nil && !errors.Is(err, context.Canceled) {
			log.Info("Language server process exited with error", "pid", pid, "exitCode", exitCode, "error", err.Error())
		} else {
			log.V(1).Info("Language server process exited", "pid", pid, "exitCode", exitCode)
		}
	})
}

// LaunchServer starts the language server with its standard input and output connected to pipes
// and its standard error connected to the configured writer.
// The process lifetime is tied to the context: when the context is cancelled,
// the executor stops the process (gracefully first, forcefully after a timeout).
func LaunchServer(ctx context.Context, executor process.Executor, config ServerConfig, log logr.Logger) (*LaunchedServer, error) {
	if config.Path == "" {
		return nil, &SubprocessError{Path: config.Path, Err: ErrInvalidServerConfig}
	}
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("server")

	// The child writes directly into these pipes. exec.Cmd would otherwise close
	// the read end of stdout as soon as the process exits, losing unread output.
	stdinR, stdinW, stdinErr := os.Pipe()
	if stdinErr != nil {
		return nil, &SubprocessError{Path: config.Path, Err: stdinErr}
	}
	stdoutR, stdoutW, stdoutErr := os.Pipe()
	if stdoutErr != nil {
		closeAll(stdinR, stdinW)
		return nil, &SubprocessError{Path: config.Path, Err: stdoutErr}
	}

	cmd := exec.Command(config.Path, config.Args...)
	cmd.Env = config.Env
	cmd.Dir = config.Dir
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = config.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	server := &LaunchedServer{
		Stdin:     stdinW,
		Stdout:    stdoutR,
		executor:  executor,
		childEnds: []io.Closer{stdinR, stdoutW},
		done:      make(chan struct{}),
		exitCode:  process.UnknownExitCode,
	}

	pid, startWaitForExit, startErr := executor.StartProcess(ctx, cmd, server.onExited(log))
	if startErr != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, &SubprocessError{Path: config.Path, Err: startErr}
	}
	server.pid = pid
	startWaitForExit()

	log.Info("Launched language server", "command", config.Path, "args", config.Args, "pid", pid)
	return server, nil
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
