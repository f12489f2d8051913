/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
)

var (
	// ErrProxyClosed is returned when attempting to use a closed proxy.
	ErrProxyClosed = errors.New("proxy is closed")

	// ErrMissingContentLength is the cause of a FramingError for a header block without Content-Length.
	ErrMissingContentLength = errors.New("header block has no Content-Length field")

	// ErrInvalidContentLength is the cause of a FramingError for a Content-Length value that is not a valid byte count.
	ErrInvalidContentLength = errors.New("invalid Content-Length value")

	// ErrUnexpectedBytes is the cause of a FramingError for bytes found in front of a header.
	ErrUnexpectedBytes = errors.New("unexpected bytes before header")

	// ErrHeaderTooLarge is the cause of a FramingError when no header terminator shows up within the size limit.
	ErrHeaderTooLarge = errors.New("header exceeds maximum size")

	// ErrDirectionClosed is returned when injecting a message into a direction that no longer forwards messages.
	ErrDirectionClosed = errors.New("direction is no longer forwarding messages")

	// ErrInvalidServerConfig is returned when the language server configuration is invalid.
	ErrInvalidServerConfig = errors.New("invalid language server configuration: Path must not be empty")
)

// FramingError reports a header block that could not be parsed.
// The offending bytes have been skipped; decoding continues with the following bytes.
type FramingError struct {
	Header  string
	Skipped int
	Err     error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error (skipped %d bytes, header %q): %v", e.Skipped, e.Header, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// PayloadDecodeError reports a correctly framed message whose body is not a valid JSON-RPC message.
// Only that message is dropped.
type PayloadDecodeError struct {
	Body []byte
	Err  error
}

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("failed to decode message body (%d bytes): %v", len(e.Body), e.Err)
}

func (e *PayloadDecodeError) Unwrap() error {
	return e.Err
}

// SubprocessError reports a failure to start or track the language server process.
type SubprocessError struct {
	Path string
	Err  error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("language server %q: %v", e.Path, e.Err)
}

func (e *SubprocessError) Unwrap() error {
	return e.Err
}

// SinkWriteError reports that a destination stream could not be written.
// It terminates the direction that hit it and triggers proxy shutdown.
type SinkWriteError struct {
	Direction Direction
	Err       error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("failed to write %s message: %v", e.Direction, e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// IsRecoverable returns true if the error only affects a single message and the stream can continue.
func IsRecoverable(err error) bool {
	var framingErr *FramingError
	var payloadErr *PayloadDecodeError
	return errors.As(err, &framingErr) || errors.As(err, &payloadErr)
}

// IsFatal returns true if the error must terminate the whole proxy.
func IsFatal(err error) bool {
	var subprocessErr *SubprocessError
	var sinkErr *SinkWriteError
	return errors.As(err, &subprocessErr) || errors.As(err, &sinkErr)
}

// filterContextError filters out redundant context errors during shutdown.
// If the error is a context.Canceled or context.DeadlineExceeded and the
// context is already done, the error is logged at debug level and nil is returned.
// Errors from a process killed due to context cancellation ("signal: killed",
// "signal: terminated") are filtered out as well.
func filterContextError(err error, ctx context.Context, log logr.Logger) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.V(1).Info("Filtering redundant context error", "error", err)
			return nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && (strings.Contains(exitErr.Error(), "signal: killed") || strings.Contains(exitErr.Error(), "signal: terminated")) {
			log.V(1).Info("Filtering process killed error on context cancellation", "error", err)
			return nil
		}
	}

	return err
}
