/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/osutil"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/resiliency"
)

const (
	SQLS_PROXY_DIAGNOSTICS_LOG_FOLDER = "SQLS_PROXY_DIAGNOSTICS_LOG_FOLDER" // Folder to write diagnostics logs to (defaults to a temp folder)
	SQLS_PROXY_DIAGNOSTICS_LOG_LEVEL  = "SQLS_PROXY_DIAGNOSTICS_LOG_LEVEL"  // Log level to include in diagnostics logs (defaults to none)
	SQLS_PROXY_LOG_FILE_NAME_SUFFIX   = "SQLS_PROXY_LOG_FILE_NAME_SUFFIX"   // Suffix to append to the log file name (defaults to process ID)

	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"

	flushTimeout = 2 * time.Second
)

var (
	defaultLogPath = filepath.Join(os.TempDir(), "sqls-proxy", "logs")
	startTime      = time.Now()
)

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger that writes human-readable output to stderr and, when enabled
// through the environment, machine-readable output to a diagnostics log file.
//
// Standard output is never used: it carries the protocol stream.
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if osutil.IsWindows() {
		encoderConfig.LineEnding = string(osutil.LineSep())
	}
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	consoleAtomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleAtomicLevel),
	}

	var diagnosticsLogErr error
	if logCore, err := getDiagnosticsLogCore(name, encoderConfig); err != nil {
		if !errors.Is(err, errDiagnosticsLogNotEnabled) {
			diagnosticsLogErr = err
		}
	} else {
		cores = append(cores, logCore)
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))
	logger := zapr.NewLogger(zapLogger).WithName(name)

	if diagnosticsLogErr != nil {
		logger.Error(diagnosticsLogErr, "failed to enable diagnostics log output")
	}

	return &Logger{
		Logger:      logger,
		name:        name,
		atomicLevel: consoleAtomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Level() zapcore.Level {
	return l.atomicLevel.Level()
}

// Flushes buffered log entries, giving up after flushTimeout.
func (l *Logger) Flush() {
	if !resiliency.RunWithTimeout(l.flush, flushTimeout) {
		fmt.Fprintln(os.Stderr, "timed out flushing logs")
	}
}

// Add verbosity flag to enable setting console log levels
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := &levelFlagValue{setLevel: l.SetLevel}
	fs.VarP(levelVal, verbosityFlagName, verbosityFlagShortName, "Logging verbosity level (e.g. -v=debug). Can be one of 'debug', 'info', 'warn', or 'error', or any positive integer corresponding to increasing levels of debug verbosity.")
}

func getDiagnosticsLogCore(name string, encoderConfig zapcore.EncoderConfig) (zapcore.Core, error) {
	logLevel, err := GetDiagnosticsLogLevel()
	if err != nil {
		return nil, err
	}

	logFolder, err := EnsureDiagnosticsLogsFolder()
	if err != nil {
		return nil, err
	}

	// Log file name is <name>-<timestamp>-<pid>, but the PID part can be overridden
	// by setting the SQLS_PROXY_LOG_FILE_NAME_SUFFIX environment variable.
	logFileNameSuffix := osutil.EnvVarStringWithDefault(SQLS_PROXY_LOG_FILE_NAME_SUFFIX, "")
	if !osutil.HasOnlyValidFilenameChars(logFileNameSuffix) {
		logFileNameSuffix = fmt.Sprintf("%d", os.Getpid())
	}

	// With a custom suffix the file might already exist, so retry a few times with a fresh timestamp.
	// Worst case we will run without a log file.
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(20*time.Millisecond),
		backoff.WithMaxInterval(100*time.Millisecond),
		backoff.WithMaxElapsedTime(2*time.Second),
	)
	logOutput, err := resiliency.RetryGet(context.Background(), b, func() (*os.File, error) {
		logname := fmt.Sprintf("%s-%d-%s.log", name, time.Now().UnixMilli()-startTime.Unix()*1000, logFileNameSuffix)
		f, openErr := os.OpenFile(
			filepath.Join(logFolder, logname),
			os.O_RDWR|os.O_CREATE|os.O_EXCL,
			osutil.PermissionOnlyOwnerReadWrite,
		)
		if openErr != nil && !errors.Is(openErr, os.ErrExist) {
			// Only a name collision is worth another attempt.
			return nil, resiliency.Permanent(openErr)
		}
		return f, openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logEncoder := zapcore.NewJSONEncoder(encoderConfig)
	return zapcore.NewCore(logEncoder, zapcore.AddSync(logOutput), zap.NewAtomicLevelAt(logLevel)), nil
}

// Returns the folder to write diagnostics logs to, creating it if necessary.
func EnsureDiagnosticsLogsFolder() (string, error) {
	logFolder := osutil.EnvVarStringWithDefault(SQLS_PROXY_DIAGNOSTICS_LOG_FOLDER, defaultLogPath)

	info, err := os.Stat(logFolder)
	if errors.Is(err, fs.ErrNotExist) {
		if err = os.MkdirAll(logFolder, osutil.PermissionOnlyOwnerReadWriteSetCurrent); err != nil {
			return "", fmt.Errorf("failed to create the diagnostic log folder '%s': %w", logFolder, err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to verify the existence of the diagnostic log folder '%s': %w", logFolder, err)
	} else if !info.IsDir() {
		return "", fmt.Errorf("'%s' is not a directory and cannot be used as a log folder", logFolder)
	}

	return logFolder, nil
}

var errDiagnosticsLogNotEnabled = errors.New("diagnostics log not enabled")

func GetDiagnosticsLogLevel() (zapcore.Level, error) {
	diagnosticsLogLevel, found := os.LookupEnv(SQLS_PROXY_DIAGNOSTICS_LOG_LEVEL)
	if !found {
		return zapcore.InvalidLevel, errDiagnosticsLogNotEnabled
	}

	logLevel, err := StringToLevel(diagnosticsLogLevel, zapcore.ErrorLevel)
	if err != nil {
		return zapcore.InvalidLevel, fmt.Errorf("failed to parse log level: %v", diagnosticsLogLevel)
	}

	return logLevel, nil
}
