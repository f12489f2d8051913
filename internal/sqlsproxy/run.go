/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package sqlsproxy wires the protocol proxy to the sqls language server.
package sqlsproxy

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/lsp"
	"github.com/MrTomatePNG/zed-sqls-extension/internal/tracelog"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
)

// IO holds the streams of the proxy process.
type IO struct {
	// In and Out carry the protocol stream from and to the editor.
	In  io.Reader
	Out io.Writer

	// Stderr receives the standard error output of the language server.
	Stderr io.Writer
}

// Run validates the configuration, starts the language server and proxies messages until
// the server exits or the context is cancelled. Returns the exit code the proxy should exit with.
func Run(ctx context.Context, config Config, streams IO, log logr.Logger) (int32, error) {
	if err := config.Validate(); err != nil {
		return 1, fmt.Errorf("invalid configuration: %w", err)
	}

	sessionID := uuid.NewString()
	log = log.WithValues("session", sessionID)

	initOptions, initOptionsErr := LoadInitOptions(config.InitOptionsFile)
	if initOptionsErr != nil {
		// Same as having no settings file: sqls still works, just without the workspace settings.
		log.Error(initOptionsErr, "Ignoring initialization options")
		initOptions = nil
	} else if initOptions != nil {
		log.V(1).Info("Loaded initialization options", "file", config.InitOptionsFile)
	}

	var recorder lsp.Recorder = lsp.NopRecorder{}
	if config.TraceFile != "" {
		traceLog, traceErr := tracelog.New(tracelog.Config{
			Path:       config.TraceFile,
			MaxSizeMB:  config.TraceMaxSizeMB,
			MaxBackups: config.TraceMaxBackups,
			SessionID:  sessionID,
		})
		if traceErr != nil {
			return 1, fmt.Errorf("could not open trace file: %w", traceErr)
		}
		defer func() {
			if closeErr := traceLog.Close(); closeErr != nil {
				log.Error(closeErr, "Could not close trace file")
			}
		}()
		recorder = traceLog
	}

	pipeline := lsp.NewPipeline(log, recorder, lsp.DefaultRules(lsp.RuleOptions{
		InitializationOptions: initOptions,
	})...)

	executor := process.NewOSExecutor(log)
	executor.StopTimeout = config.StopTimeout

	var decoderOptions []lsp.DecoderOption
	if config.MaxContentLength > 0 {
		decoderOptions = append(decoderOptions, lsp.WithMaxContentLength(config.MaxContentLength))
	}

	session := lsp.NewSession(lsp.SessionConfig{
		Server: lsp.ServerConfig{
			Path:   config.ServerPath,
			Args:   config.ServerCommandArgs(),
			Stderr: streams.Stderr,
		},
		Executor:     executor,
		Pipeline:     pipeline,
		ClientIn:     streams.In,
		ClientOut:    streams.Out,
		Proxy:        lsp.ProxyConfig{Logger: log, DecoderOptions: decoderOptions},
		DrainTimeout: config.DrainTimeout,
		Logger:       log,
	})

	if config.WatchInitOptions {
		watchCtx, stopWatching := context.WithCancel(ctx)
		defer stopWatching()
		if watchErr := WatchInitOptions(watchCtx, config.InitOptionsFile, pipeline.State().Initialized(), session, log); watchErr != nil {
			log.Error(watchErr, "Settings changes will not be sent to the language server")
		}
	}

	exitCode, runErr := session.Run(ctx)
	if proxy := session.Proxy(); proxy != nil {
		up, down := proxy.Stats(lsp.Upstream), proxy.Stats(lsp.Downstream)
		log.V(1).Info("Session ended",
			"exitCode", exitCode,
			"upstreamForwarded", up.Forwarded, "upstreamReplaced", up.Replaced, "upstreamDropped", up.Dropped, "upstreamInjected", up.Injected, "upstreamDecodeErrors", up.DecodeErrors,
			"downstreamForwarded", down.Forwarded, "downstreamDecodeErrors", down.DecodeErrors)
	}
	return exitCode, runErr
}
