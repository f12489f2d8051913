/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

//go:build !windows

package lsp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/testutil"
)

func newTestExecutor(t *testing.T) *process.OSExecutor {
	executor := process.NewOSExecutor(testutil.NewLogForTesting(t.Name()))
	executor.StopTimeout = 2 * time.Second
	return executor
}

func shellServer(script string, stderr *testutil.BufferWriter) ServerConfig {
	config := ServerConfig{
		Path: "/bin/sh",
		Args: []string{"-c", script},
	}
	if stderr != nil {
		config.Stderr = stderr
	}
	return config
}

func TestSessionPropagatesServerExitCode(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, sessionTestTimeout)
	defer cancel()

	clientIn := testutil.NewChunkReader()
	clientOut := testutil.NewBufferWriter()

	// The server echoes everything back and exits with code 3 once its input ends.
	s := NewSession(SessionConfig{
		Server:    shellServer("cat; exit 3", nil),
		Executor:  newTestExecutor(t),
		ClientIn:  clientIn,
		ClientOut: clientOut,
		Logger:    testutil.NewLogForTesting(t.Name()),
	})

	msg := frame(`{"jsonrpc":"2.0","id":1,"method":"shutdown"}`)
	clientIn.AddSplit([]byte(msg), 3)
	clientIn.End()

	res := waitForSession(t, ctx, runSession(ctx, s))
	require.NoError(t, res.err)
	require.Equal(t, int32(3), res.exitCode)
	require.Equal(t, msg, string(clientOut.Bytes()))
	require.Equal(t, int64(1), s.Proxy().Stats(Upstream).Forwarded)
	require.Equal(t, int64(1), s.Proxy().Stats(Downstream).Forwarded)
}

func TestSessionEndsWhenServerExitsFirst(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, sessionTestTimeout)
	defer cancel()

	clientIn := testutil.NewChunkReader() // Never ends
	clientOut := testutil.NewBufferWriter()
	stderr := testutil.NewBufferWriter()

	s := NewSession(SessionConfig{
		Server:    shellServer(`printf 'Content-Length: 2\r\n\r\n{}'; echo oops >&2; exit 0`, stderr),
		Executor:  newTestExecutor(t),
		ClientIn:  clientIn,
		ClientOut: clientOut,
		Logger:    testutil.NewLogForTesting(t.Name()),
	})

	res := waitForSession(t, ctx, runSession(ctx, s))
	require.NoError(t, res.err)
	require.Equal(t, int32(0), res.exitCode)
	require.Equal(t, "Content-Length: 2\r\n\r\n{}", string(clientOut.Bytes()), "server output is drained before the session ends")
	require.Equal(t, "oops\n", string(stderr.Bytes()))
}

func TestSessionInterruptStopsServer(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, sessionTestTimeout)
	defer cancel()

	clientIn := testutil.NewChunkReader()
	clientOut := testutil.NewBufferWriter()

	s := NewSession(SessionConfig{
		Server:    shellServer("exec sleep 60", nil),
		Executor:  newTestExecutor(t),
		ClientIn:  clientIn,
		ClientOut: clientOut,
		Logger:    testutil.NewLogForTesting(t.Name()),
	})

	runCtx, interrupt := context.WithCancel(ctx)
	done := runSession(runCtx, s)

	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	interrupt()

	res := waitForSession(t, ctx, done)
	require.NoError(t, res.err)
	require.Equal(t, int32(0), res.exitCode, "a server stopped by a signal has no exit code")
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestSessionReportsSpawnFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, sessionTestTimeout)
	defer cancel()

	s := NewSession(SessionConfig{
		Server:    ServerConfig{Path: "/nonexistent/sqls-language-server"},
		Executor:  newTestExecutor(t),
		ClientIn:  testutil.NewChunkReader(),
		ClientOut: testutil.NewBufferWriter(),
		Logger:    testutil.NewLogForTesting(t.Name()),
	})

	code, err := s.Run(ctx)
	require.NotZero(t, code)

	var subprocessErr *SubprocessError
	require.ErrorAs(t, err, &subprocessErr)
	require.Equal(t, "/nonexistent/sqls-language-server", subprocessErr.Path)
	require.True(t, IsFatal(err))
}

func TestLaunchedServerStop(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, sessionTestTimeout)
	defer cancel()

	server, err := LaunchServer(ctx, newTestExecutor(t), shellServer("exec sleep 60", nil), testutil.NewLogForTesting(t.Name()))
	require.NoError(t, err)
	defer func() { _ = server.Close() }()

	require.NotEqual(t, process.UnknownPID, server.Pid())
	require.Equal(t, process.UnknownExitCode, server.ExitCode())

	require.NoError(t, server.Stop())

	select {
	case <-server.Done():
	case <-ctx.Done():
		require.Fail(t, "server did not stop")
	}
	require.Equal(t, process.UnknownExitCode, server.ExitCode())
	require.NoError(t, server.Stop(), "stopping an exited server is harmless")
}
