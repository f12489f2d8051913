/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/process"
	"github.com/MrTomatePNG/zed-sqls-extension/pkg/resiliency"
)

const (
	// DefaultDrainTimeout is how long the session keeps forwarding server output after the server exits.
	DefaultDrainTimeout = 2 * time.Second

	// DefaultShutdownTimeout is how long the session waits for the server to exit on its own
	// after the client closed its stream, before stopping it.
	DefaultShutdownTimeout = 5 * time.Second
)

// SessionConfig contains everything needed to run a proxy session.
type SessionConfig struct {
	Server   ServerConfig
	Executor process.Executor

	// Pipeline intercepts messages in both directions. If nil, messages are forwarded unchanged.
	Pipeline *Pipeline

	// ClientIn and ClientOut connect the session to the client (usually stdin and stdout).
	ClientIn  io.Reader
	ClientOut io.Writer

	Proxy ProxyConfig

	// DrainTimeout bounds forwarding of buffered server output after the server exits.
	DrainTimeout time.Duration

	// ShutdownTimeout bounds waiting for the server to exit after the client stream ends.
	ShutdownTimeout time.Duration

	Logger logr.Logger
}

// Session runs a language server and proxies messages between it and the client
// until the server exits.
type Session struct {
	config    SessionConfig
	log       logr.Logger
	proxy     *Proxy
	ready     chan struct{}
	readyOnce sync.Once
}

func NewSession(config SessionConfig) *Session {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.Proxy.Logger.GetSink() == nil {
		config.Proxy.Logger = log
	}

	return &Session{
		config: config,
		log:    log.WithName("session"),
		ready:  make(chan struct{}),
	}
}

// Proxy returns the proxy of a running session, or nil if the session has not started it yet.
func (s *Session) Proxy() *Proxy {
	select {
	case <-s.ready:
		return s.proxy
	default:
		return nil
	}
}

// Run starts the language server and forwards messages until the server exits.
// Cancelling the context stops the server; its exit then ends the session.
// Returns the exit code of the server (0 if it could not be determined).
// A server that cannot be started results in a *SubprocessError.
func (s *Session) Run(ctx context.Context) (int32, error) {
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	server, launchErr := LaunchServer(serverCtx, s.config.Executor, s.config.Server, s.log)
	if launchErr != nil {
		s.log.Error(launchErr, "Could not start language server")
		return 1, launchErr
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			s.log.V(1).Info("Error closing language server pipes", "error", closeErr.Error())
		}
	}()

	s.proxy = NewProxy(Streams{
		ClientIn:  s.config.ClientIn,
		ClientOut: s.config.ClientOut,
		ServerIn:  server.Stdin,
		ServerOut: server.Stdout,
	}, s.config.Pipeline, s.config.Proxy)
	s.readyOnce.Do(func() { close(s.ready) })

	// The proxy outlives an interrupt: the server exit ends it.
	proxyCtx, stopProxy := context.WithCancel(context.WithoutCancel(ctx))
	defer stopProxy()

	proxyDone := make(chan error, 1)
	go func() {
		proxyDone <- s.proxy.Run(proxyCtx)
	}()

	select {
	case <-server.Done():
		s.log.V(1).Info("Language server exited, draining its output")
		if !resiliency.WaitWithTimeout(s.proxy.DirectionDone(Downstream), s.config.DrainTimeout) {
			s.log.Info("Timed out forwarding language server output")
		}
		stopProxy()
		proxyErr := <-proxyDone
		return s.exitCode(server), proxyErr

	case proxyErr := <-proxyDone:
		if proxyErr != nil {
			s.log.Error(proxyErr, "Proxy failed, stopping language server")
			stopServer()
			_ = server.Wait()
			return 1, proxyErr
		}

		// Both streams ended. The server got EOF on its input and should be on its way out.
		if !resiliency.WaitWithTimeout(server.Done(), s.config.ShutdownTimeout) {
			s.log.Info("Language server did not exit after its input was closed, stopping it")
			stopServer()
		}
		_ = server.Wait()
		return s.exitCode(server), nil
	}
}

// Inject sends a proxy-originated message in the given direction (see Proxy.Inject).
// Waits for the session to start its proxy.
func (s *Session) Inject(ctx context.Context, dir Direction, msg *Message) error {
	select {
	case <-s.ready:
		return s.proxy.Inject(ctx, dir, msg)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) exitCode(server *LaunchedServer) int32 {
	exitErr := server.Wait()
	if exitErr != nil && !errors.Is(exitErr, context.Canceled) {
		s.log.Info("Could not determine language server exit status", "error", exitErr.Error())
	}

	code := server.ExitCode()
	if code == process.UnknownExitCode {
		return 0
	}
	return code
}
