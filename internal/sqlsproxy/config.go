/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package sqlsproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/lsp"
	"github.com/MrTomatePNG/zed-sqls-extension/internal/tracelog"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/osutil"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
)

const (
	DefaultServerPath      = "sqls"
	DefaultInitOptionsFile = "config.yml"

	// Flag that makes sqls log the protocol traffic to its standard error.
	serverTraceArg = "-t"

	// Top-level key sqls expects its workspace configuration under.
	initOptionsKey = "sqls"
)

// Environment variables that override the defaults. Command line flags take precedence over them.
const (
	SQLS_PROXY_SERVER_PATH          = "SQLS_PROXY_SERVER_PATH"
	SQLS_PROXY_DISABLE_SERVER_TRACE = "SQLS_PROXY_DISABLE_SERVER_TRACE"
	SQLS_PROXY_INIT_OPTIONS_FILE    = "SQLS_PROXY_INIT_OPTIONS_FILE"
	SQLS_PROXY_TRACE_FILE           = "SQLS_PROXY_TRACE_FILE"
	SQLS_PROXY_STOP_TIMEOUT         = "SQLS_PROXY_STOP_TIMEOUT"
)

var (
	ErrNoServerPath        = errors.New("language server path must not be empty")
	ErrInvalidStopTimeout  = errors.New("stop timeout must be positive")
	ErrInvalidTraceMaxSize = errors.New("trace file maximum size must not be negative")
	ErrInvalidInitOptions  = errors.New("invalid initialization options file")
)

// Config is the configuration of a proxy run.
type Config struct {
	// ServerPath is the language server executable.
	ServerPath string

	// ServerArgs are passed to the language server.
	ServerArgs []string

	// ServerTrace makes the language server log its protocol traffic to standard error.
	ServerTrace bool

	// InitOptionsFile is a YAML file with sqls settings injected into the initialize request
	// when the client sends no initialization options. A missing file is not an error.
	InitOptionsFile string

	// WatchInitOptions makes the proxy send changes of InitOptionsFile to the running language server.
	WatchInitOptions bool

	// TraceFile, if set, receives a JSON line for every entry recorded by the interception rules.
	TraceFile       string
	TraceMaxSizeMB  int
	TraceMaxBackups int

	// StopTimeout is how long the server gets to exit after each stop signal.
	StopTimeout time.Duration

	// DrainTimeout bounds forwarding of server output after the server exits.
	DrainTimeout time.Duration

	// MaxContentLength is the largest message body accepted, in bytes. Zero means no limit.
	MaxContentLength int
}

func DefaultConfig() Config {
	return Config{
		ServerPath:       DefaultServerPath,
		ServerTrace:      true,
		InitOptionsFile:  DefaultInitOptionsFile,
		WatchInitOptions: true,
		TraceMaxSizeMB:   tracelog.DefaultMaxSizeMB,
		TraceMaxBackups:  tracelog.DefaultMaxBackups,
		StopTimeout:      process.DefaultStopTimeout,
		DrainTimeout:     lsp.DefaultDrainTimeout,
	}
}

// ConfigFromEnvironment returns the default configuration with the SQLS_PROXY_* environment overrides applied.
func ConfigFromEnvironment() Config {
	c := DefaultConfig()
	c.ServerPath = osutil.EnvVarStringWithDefault(SQLS_PROXY_SERVER_PATH, c.ServerPath)
	c.ServerTrace = !osutil.EnvVarSwitchEnabled(SQLS_PROXY_DISABLE_SERVER_TRACE)
	c.InitOptionsFile = osutil.EnvVarStringWithDefault(SQLS_PROXY_INIT_OPTIONS_FILE, c.InitOptionsFile)
	c.TraceFile = osutil.EnvVarStringWithDefault(SQLS_PROXY_TRACE_FILE, c.TraceFile)
	c.StopTimeout = osutil.EnvVarDurationValWithDefault(SQLS_PROXY_STOP_TIMEOUT, c.StopTimeout)
	if c.StopTimeout == 0 {
		c.StopTimeout = process.DefaultStopTimeout
	}
	return c
}

func (c Config) Validate() error {
	var errs []error
	if c.ServerPath == "" {
		errs = append(errs, ErrNoServerPath)
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, ErrInvalidStopTimeout)
	}
	if c.TraceMaxSizeMB < 0 {
		errs = append(errs, ErrInvalidTraceMaxSize)
	}
	if c.MaxContentLength < 0 {
		errs = append(errs, fmt.Errorf("maximum content length must not be negative: %d", c.MaxContentLength))
	}
	return errors.Join(errs...)
}

// ServerCommandArgs returns the arguments for the language server, adding the trace flag if enabled.
func (c Config) ServerCommandArgs() []string {
	args := slices.Clone(c.ServerArgs)
	if c.ServerTrace && !slices.Contains(args, serverTraceArg) {
		args = append([]string{serverTraceArg}, args...)
	}
	return args
}

// LoadInitOptions reads a YAML settings file and returns the initialization options
// for sqls: the settings wrapped in an object under the "sqls" key.
// Returns nil (and no error) if the path is empty or the file does not exist.
func LoadInitOptions(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}

	content, readErr := os.ReadFile(path)
	if errors.Is(readErr, fs.ErrNotExist) {
		return nil, nil
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w '%s': %w", ErrInvalidInitOptions, path, readErr)
	}

	var settings any
	if yamlErr := yaml.Unmarshal(content, &settings); yamlErr != nil {
		return nil, fmt.Errorf("%w '%s': %w", ErrInvalidInitOptions, path, yamlErr)
	}
	if settings == nil {
		// Empty document.
		return nil, nil
	}

	options, marshalErr := json.Marshal(map[string]any{initOptionsKey: settings})
	if marshalErr != nil {
		return nil, fmt.Errorf("%w '%s': %w", ErrInvalidInitOptions, path, marshalErr)
	}
	return options, nil
}
