/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package sqlsproxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	require.NoError(t, config.Validate())
	require.Equal(t, DefaultServerPath, config.ServerPath)
	require.True(t, config.ServerTrace)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv(SQLS_PROXY_SERVER_PATH, "/opt/sqls/sqls")
	t.Setenv(SQLS_PROXY_DISABLE_SERVER_TRACE, "true")
	t.Setenv(SQLS_PROXY_INIT_OPTIONS_FILE, "/home/user/.config/sqls/config.yml")
	t.Setenv(SQLS_PROXY_TRACE_FILE, "/tmp/sqls-trace.jsonl")
	t.Setenv(SQLS_PROXY_STOP_TIMEOUT, "750ms")

	config := ConfigFromEnvironment()
	require.Equal(t, "/opt/sqls/sqls", config.ServerPath)
	require.False(t, config.ServerTrace)
	require.Equal(t, "/home/user/.config/sqls/config.yml", config.InitOptionsFile)
	require.Equal(t, "/tmp/sqls-trace.jsonl", config.TraceFile)
	require.Equal(t, 750*time.Millisecond, config.StopTimeout)
	require.NoError(t, config.Validate())
}

func TestConfigFromEnvironmentIgnoresInvalidValues(t *testing.T) {
	t.Setenv(SQLS_PROXY_SERVER_PATH, " ")
	t.Setenv(SQLS_PROXY_DISABLE_SERVER_TRACE, "")
	t.Setenv(SQLS_PROXY_STOP_TIMEOUT, "0s")

	require.Equal(t, DefaultConfig(), ConfigFromEnvironment())
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.ServerPath = ""
	config.StopTimeout = 0
	config.TraceMaxSizeMB = -1

	err := config.Validate()
	require.ErrorIs(t, err, ErrNoServerPath)
	require.ErrorIs(t, err, ErrInvalidStopTimeout)
	require.ErrorIs(t, err, ErrInvalidTraceMaxSize)
}

func TestServerCommandArgs(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.ServerArgs = []string{"-config", "/tmp/sqls.yml"}
	require.Equal(t, []string{"-t", "-config", "/tmp/sqls.yml"}, config.ServerCommandArgs())
	require.Equal(t, []string{"-config", "/tmp/sqls.yml"}, config.ServerArgs, "configured args are not modified")

	config.ServerArgs = []string{"-t"}
	require.Equal(t, []string{"-t"}, config.ServerCommandArgs(), "trace flag is not duplicated")

	config.ServerTrace = false
	config.ServerArgs = nil
	require.Empty(t, config.ServerCommandArgs())
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadInitOptionsWrapsSettings(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yml", `
lowercaseKeywords: false
connections:
  - alias: local
    driver: postgresql
    dataSourceName: "host=127.0.0.1 port=5432 user=postgres dbname=app sslmode=disable"
  - driver: sqlite3
    dataSourceName: "file:/tmp/app.db"
`)

	options, err := LoadInitOptions(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"sqls":{
		"lowercaseKeywords": false,
		"connections": [
			{"alias":"local","driver":"postgresql","dataSourceName":"host=127.0.0.1 port=5432 user=postgres dbname=app sslmode=disable"},
			{"driver":"sqlite3","dataSourceName":"file:/tmp/app.db"}
		]
	}}`, string(options))
}

func TestLoadInitOptionsMissingFile(t *testing.T) {
	t.Parallel()

	options, err := LoadInitOptions(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	require.Nil(t, options)

	options, err = LoadInitOptions("")
	require.NoError(t, err)
	require.Nil(t, options)
}

func TestLoadInitOptionsEmptyFile(t *testing.T) {
	t.Parallel()

	options, err := LoadInitOptions(writeFile(t, "config.yml", "# nothing configured yet\n"))
	require.NoError(t, err)
	require.Nil(t, options)
}

func TestLoadInitOptionsInvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadInitOptions(writeFile(t, "config.yml", "connections: [unterminated\n"))
	require.ErrorIs(t, err, ErrInvalidInitOptions)
}

func TestLoadInitOptionsDirectory(t *testing.T) {
	t.Parallel()

	_, err := LoadInitOptions(t.TempDir())
	require.ErrorIs(t, err, ErrInvalidInitOptions)
}
