/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"
)

// Encode serializes a message into its wire form: a Content-Length header followed by exactly
// that many body bytes. Messages decoded from the wire and not modified keep their original body.
func Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot encode a nil message")
	}

	body, marshalErr := msg.body()
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", marshalErr)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)

	// The base protocol framing is shared by the language server and debug adapter protocols.
	if writeErr := dap.WriteBaseMessage(&buf, body); writeErr != nil {
		return nil, fmt.Errorf("failed to frame message: %w", writeErr)
	}

	return buf.Bytes(), nil
}

// FrameWriter writes framed messages to a sink.
// It is safe for concurrent use; each message is written and flushed as a unit.
type FrameWriter struct {
	writer *bufio.Writer

	// writeMu protects concurrent writes
	writeMu sync.Mutex
}

// NewFrameWriter creates a FrameWriter that writes to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		writer: bufio.NewWriter(w),
	}
}

// WriteMessage encodes the message and writes it to the sink.
func (fw *FrameWriter) WriteMessage(msg *Message) error {
	frame, encodeErr := Encode(msg)
	if encodeErr != nil {
		return encodeErr
	}
	return fw.WriteFrame(frame)
}

// WriteFrame writes an already encoded frame to the sink.
func (fw *FrameWriter) WriteFrame(frame []byte) error {
	fw.writeMu.Lock()
	defer fw.writeMu.Unlock()

	if _, writeErr := fw.writer.Write(frame); writeErr != nil {
		return fmt.Errorf("failed to write message: %w", writeErr)
	}

	if flushErr := fw.writer.Flush(); flushErr != nil {
		return fmt.Errorf("failed to flush message: %w", flushErr)
	}

	return nil
}
