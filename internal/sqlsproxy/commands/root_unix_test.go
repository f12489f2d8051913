/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

//go:build !windows

package commands

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/lsp"
	"github.com/MrTomatePNG/zed-sqls-extension/internal/sqlsproxy"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/logger"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/testutil"
)

func TestRootCommandPropagatesExitCode(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	in := testutil.NewChunkReader()
	out := testutil.NewBufferWriter()
	in.Add([]byte("Content-Length: 17\r\n\r\n{\"method\":\"exit\"}"))
	in.End()

	cmd := newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{In: in, Out: out, Stderr: testutil.NewBufferWriter()})
	cmd.SetArgs([]string{"--server", "/bin/sh", "--server-trace=false", "--init-options", "", "--", "-c", "cat; exit 7"})

	err := cmd.ExecuteContext(ctx)

	var serverExit *ServerExitError
	require.ErrorAs(t, err, &serverExit)
	require.Equal(t, int32(7), serverExit.ExitCode)
	require.Equal(t, "Content-Length: 17\r\n\r\n{\"method\":\"exit\"}", string(out.Bytes()))
}

func TestRootCommandSucceedsOnCleanExit(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	in := testutil.NewChunkReader()
	in.End()

	cmd := newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{In: in, Out: testutil.NewBufferWriter(), Stderr: testutil.NewBufferWriter()})
	cmd.SetArgs([]string{"--server", "/bin/sh", "--server-trace=false", "--init-options", "", "--", "-c", "cat"})

	require.NoError(t, cmd.ExecuteContext(ctx))
}

func TestRootCommandRejectsInvalidInvocation(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	type testcase struct {
		description string
		args        []string
	}

	testcases := []testcase{
		{"unknown flag", []string{"--no-such-flag"}},
		{"empty server path", []string{"--server", ""}},
		{"bad stop timeout", []string{"--stop-timeout", "0s"}},
		{"malformed duration", []string{"--stop-timeout", "soon"}},
	}

	for _, tc := range testcases {
		cmd := newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{In: testutil.NewChunkReader(), Out: testutil.NewBufferWriter()})
		cmd.SetArgs(tc.args)
		cmd.SetErr(&bytes.Buffer{})

		err := cmd.ExecuteContext(ctx)
		var invocationErr *InvocationError
		require.ErrorAs(t, err, &invocationErr, tc.description)
	}
}

func TestVersionSubcommand(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
	require.NotEmpty(t, parsed["version"])
}

func TestCheckSubcommand(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	cmd := newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--server", "/bin/sh", "--", "-c", "echo sqls version 0.2.28"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	require.Equal(t, "sqls version 0.2.28\n", out.String())
}

func TestCheckSubcommandReportsFailures(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	cmd := newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "--server", "/bin/sh", "--", "-c", "echo 'unknown flag' >&2; exit 4"})

	err := cmd.ExecuteContext(ctx)
	var serverExit *ServerExitError
	require.ErrorAs(t, err, &serverExit)
	require.Equal(t, int32(4), serverExit.ExitCode)

	cmd = newRootCommand(logger.New("root-command-test"), sqlsproxy.IO{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "--server", "/no/such/sqls"})

	err = cmd.ExecuteContext(ctx)
	var subprocessErr *lsp.SubprocessError
	require.ErrorAs(t, err, &subprocessErr)
	require.Equal(t, "/no/such/sqls", subprocessErr.Path)
}
