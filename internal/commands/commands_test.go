/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/testutil"
)

func TestVersionCommandPrintsJSON(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCommand(logr.Discard())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
	require.Contains(t, parsed, "version")
}

func TestMonitorWithoutPidKeepsContext(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var mf MonitorFlags
	AddMonitorFlags(fs, &mf)
	require.NoError(t, fs.Parse(nil))

	ctx := context.Background()
	monitorCtx, cancel := Monitor(ctx, mf, logr.Discard())
	defer cancel()
	require.Equal(t, ctx, monitorCtx)
}

func TestMonitorCancelsWhenProcessExits(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	t.Parallel()

	testCtx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	cmd := exec.Command("/bin/sh", "-c", "sleep 0.3")
	require.NoError(t, cmd.Start())
	go func() { _ = cmd.Wait() }()

	pid, err := process.IntToPidT(cmd.Process.Pid)
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var mf MonitorFlags
	AddMonitorFlags(fs, &mf)
	require.NoError(t, fs.Parse([]string{"--monitor", strconv.Itoa(cmd.Process.Pid), "--monitor-interval", "50ms"}))
	require.Equal(t, int64(pid), mf.Pid)

	monitorCtx, monitorCancel := Monitor(testCtx, mf, logr.Discard())
	defer monitorCancel()

	select {
	case <-monitorCtx.Done():
	case <-testCtx.Done():
		require.Fail(t, "monitor context was not cancelled after the process exited")
	}
}
