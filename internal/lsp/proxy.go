/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/smallnest/chanx"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultReadBufferSize is the default size of the buffer used to read raw chunks from a source stream.
	DefaultReadBufferSize = 32 * 1024

	// Initial capacity of the per-direction frame queue; the queue grows without bound.
	defaultQueueCapacity = 64
)

// Streams are the four byte streams a proxy connects.
type Streams struct {
	// ClientIn carries bytes from the client (usually the proxy's stdin).
	ClientIn io.Reader
	// ClientOut receives bytes for the client (usually the proxy's stdout).
	ClientOut io.Writer
	// ServerIn receives bytes for the language server (its stdin).
	// If it implements io.Closer, it is closed once the client stream ends and all frames are written.
	ServerIn io.Writer
	// ServerOut carries bytes from the language server (its stdout).
	ServerOut io.Reader
}

// ProxyConfig contains configuration options for the proxy.
type ProxyConfig struct {
	// Logger is the logger for the proxy. If nil, logging is disabled.
	Logger logr.Logger

	// ReadBufferSize is the size of raw reads from the source streams.
	// If zero, DefaultReadBufferSize is used.
	ReadBufferSize int

	// DecoderOptions are applied to the decoder of each direction.
	DecoderOptions []DecoderOption
}

// DirectionStats counts what happened to the messages of one direction.
type DirectionStats struct {
	Forwarded    int64
	Replaced     int64
	Dropped      int64
	Injected     int64
	DecodeErrors int64
}

type directionCounters struct {
	forwarded    atomic.Int64
	replaced     atomic.Int64
	dropped      atomic.Int64
	injected     atomic.Int64
	decodeErrors atomic.Int64
}

// pump describes one direction of the proxy.
type pump struct {
	direction      Direction
	source         io.Reader
	sink           io.Writer
	closeSinkOnEOF bool
	counters       *directionCounters
}

// Proxy forwards messages between a client and a language server, running every message
// through the interception pipeline. Each direction has its own decoder and write queue,
// so a slow sink never stalls decoding of the other stream, and messages are forwarded
// in arrival order within a direction.
type Proxy struct {
	streams        Streams
	pipeline       *Pipeline
	log            logr.Logger
	readBufferSize int
	decoderOptions []DecoderOption
	counters       [2]directionCounters
	done           [2]chan struct{}
	inject         [2]chan []byte

	// runOnce ensures Run is only called once
	runOnce sync.Once
}

// NewProxy creates a new proxy over the given streams.
func NewProxy(streams Streams, pipeline *Pipeline, config ProxyConfig) *Proxy {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	readBufferSize := config.ReadBufferSize
	if readBufferSize <= 0 {
		readBufferSize = DefaultReadBufferSize
	}

	if pipeline == nil {
		pipeline = NewPipeline(log, nil)
	}

	return &Proxy{
		streams:        streams,
		pipeline:       pipeline,
		log:            log.WithName("proxy"),
		readBufferSize: readBufferSize,
		decoderOptions: config.DecoderOptions,
		done:           [2]chan struct{}{make(chan struct{}), make(chan struct{})},
		inject:         [2]chan []byte{make(chan []byte), make(chan []byte)},
	}
}

// Run forwards messages in both directions until both source streams end,
// a sink cannot be written, or the context is cancelled.
// Returns nil when both streams ended normally.
func (p *Proxy) Run(ctx context.Context) error {
	runErr := ErrProxyClosed
	p.runOnce.Do(func() {
		runErr = p.runInternal(ctx)
	})
	return runErr
}

func (p *Proxy) runInternal(ctx context.Context) error {
	pumps := []pump{
		{
			direction:      Upstream,
			source:         p.streams.ClientIn,
			sink:           p.streams.ServerIn,
			closeSinkOnEOF: true,
			counters:       &p.counters[Upstream],
		},
		{
			direction: Downstream,
			source:    p.streams.ServerOut,
			sink:      p.streams.ClientOut,
			counters:  &p.counters[Downstream],
		},
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for _, pmp := range pumps {
		queue := chanx.NewUnboundedChan[[]byte](groupCtx, defaultQueueCapacity)

		group.Go(func() error {
			defer close(queue.In)
			return p.decodeLoop(groupCtx, pmp, queue.In)
		})

		group.Go(func() error {
			defer close(p.done[pmp.direction])
			return p.writeLoop(groupCtx, pmp, queue.Out)
		})
	}

	// Unblock readers that are stuck in Read once the proxy is shutting down.
	stopCloser := context.AfterFunc(groupCtx, func() {
		p.closeSources()
	})
	defer stopCloser()

	waitErr := group.Wait()
	if waitErr != nil {
		p.log.Info("Proxy terminating due to error", "error", waitErr.Error())
	}

	return filterContextError(waitErr, ctx, p.log)
}

// DirectionDone returns a channel that is closed once a direction has stopped forwarding,
// either because its source ended and every queued frame was written, or because the proxy is shutting down.
func (p *Proxy) DirectionDone(dir Direction) <-chan struct{} {
	if dir != Upstream && dir != Downstream {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done[dir]
}

// Stats returns the message counters of a direction.
func (p *Proxy) Stats(dir Direction) DirectionStats {
	if dir != Upstream && dir != Downstream {
		return DirectionStats{}
	}

	c := &p.counters[dir]
	return DirectionStats{
		Forwarded:    c.forwarded.Load(),
		Replaced:     c.replaced.Load(),
		Dropped:      c.dropped.Load(),
		Injected:     c.injected.Load(),
		DecodeErrors: c.decodeErrors.Load(),
	}
}

// Inject sends a message that did not come from either stream, for example a notification
// originated by the proxy. The message bypasses the interception pipeline and is queued
// after the messages of that direction decoded so far.
// Blocks until the message is queued, the direction stops forwarding (ErrDirectionClosed),
// or the context is done.
func (p *Proxy) Inject(ctx context.Context, dir Direction, msg *Message) error {
	if dir != Upstream && dir != Downstream {
		return fmt.Errorf("cannot inject message: invalid direction %d", dir)
	}

	frame, encodeErr := Encode(msg)
	if encodeErr != nil {
		return encodeErr
	}

	select {
	case p.inject[dir] <- frame:
		p.counters[dir].injected.Add(1)
		p.log.V(1).Info("Injected message", "direction", dir.String(), "message", msg.Describe())
		return nil
	case <-p.done[dir]:
		return ErrDirectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodeLoop reads raw chunks from the source, decodes and intercepts messages,
// and queues the encoded frames for the writer.
func (p *Proxy) decodeLoop(ctx context.Context, pmp pump, queue chan<- []byte) error {
	log := p.log.WithValues("direction", pmp.direction.String())
	decoder := NewDecoder(p.decoderOptions...)
	chunks := readChunks(ctx, pmp.source, p.readBufferSize)

	for {
		var chunk readResult
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case frame := <-p.inject[pmp.direction]:
			select {
			case queue <- frame:
			case <-ctx.Done():
				return nil
			}
			continue
		case chunk, ok = <-chunks:
			if !ok {
				return nil
			}
		}

		for msg, decodeErr := range decoder.Feed(chunk.data) {
			if decodeErr != nil {
				pmp.counters.decodeErrors.Add(1)
				log.Error(decodeErr, "Discarding malformed message")
				continue
			}

			frame, forward := p.intercept(log, pmp, msg)
			if !forward {
				continue
			}

			select {
			case queue <- frame:
			case <-ctx.Done():
				return nil
			}
		}

		if chunk.err != nil {
			if decoder.Buffered() > 0 {
				log.Info("Source stream ended with an incomplete message", "bufferedBytes", decoder.Buffered())
			}
			if isStreamClosed(chunk.err) || ctx.Err() != nil {
				log.V(1).Info("Source stream closed")
				return nil
			}
			return fmt.Errorf("failed to read %s stream: %w", pmp.direction, chunk.err)
		}
	}
}

// intercept runs a decoded message through the pipeline and encodes the result.
// Returns false if nothing should be forwarded.
func (p *Proxy) intercept(log logr.Logger, pmp pump, msg *Message) ([]byte, bool) {
	log.V(1).Info("Received message", "message", msg.Describe())

	outcome := p.pipeline.Process(msg, pmp.direction)
	switch outcome.Verdict {
	case Drop:
		pmp.counters.dropped.Add(1)
		log.V(1).Info("Message suppressed by pipeline", "message", msg.Describe())
		return nil, false
	case Replace:
		pmp.counters.replaced.Add(1)
	default:
		pmp.counters.forwarded.Add(1)
	}

	frame, encodeErr := Encode(outcome.Message)
	if encodeErr != nil {
		log.Error(encodeErr, "Could not encode message, dropping it", "message", msg.Describe())
		return nil, false
	}
	return frame, true
}

// writeLoop writes queued frames to the sink in order.
func (p *Proxy) writeLoop(ctx context.Context, pmp pump, queue <-chan []byte) error {
	for {
		select {
		case frame, ok := <-queue:
			if !ok {
				if ctx.Err() == nil && pmp.closeSinkOnEOF {
					p.closeSink(pmp)
				}
				return nil
			}

			if _, writeErr := pmp.sink.Write(frame); writeErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return &SinkWriteError{Direction: pmp.direction, Err: writeErr}
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Proxy) closeSink(pmp pump) {
	closer, isCloser := pmp.sink.(io.Closer)
	if !isCloser {
		return
	}
	if closeErr := closer.Close(); closeErr != nil {
		p.log.V(1).Info("Error closing sink", "direction", pmp.direction.String(), "error", closeErr.Error())
	}
}

func (p *Proxy) closeSources() {
	for _, source := range []io.Reader{p.streams.ClientIn, p.streams.ServerOut} {
		if closer, isCloser := source.(io.Closer); isCloser {
			_ = closer.Close()
		}
	}
}

// The server side of the proxy is usually an *os.File pipe, which reports os.ErrClosed
// when the process exit handler has already closed it.
func isStreamClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

type readResult struct {
	data []byte
	err  error
}

// readChunks reads the source on a dedicated goroutine so that a blocked Read
// never prevents the decode loop from observing shutdown.
// The channel delivers each chunk as a fresh slice; the last element carries the read error.
func readChunks(ctx context.Context, source io.Reader, bufferSize int) <-chan readResult {
	chunks := make(chan readResult, 1)

	go func() {
		defer close(chunks)
		buf := make([]byte, bufferSize)
		for {
			n, readErr := source.Read(buf)
			var data []byte
			if n > 0 {
				data = append(data, buf[:n]...)
			}
			if n > 0 || readErr != nil {
				select {
				case chunks <- readResult{data: data, err: readErr}:
				case <-ctx.Done():
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}()

	return chunks
}
