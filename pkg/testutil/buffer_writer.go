/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// BufferWriter is an io.WriteCloser that collects everything written to it.
// Every write is recorded as a separate chunk. All methods are goroutine-safe.
// Writes fail after Close, or after FailAfter writes if set.
type BufferWriter struct {
	data      []byte
	writes    int
	closed    bool
	failAfter int
	lock      sync.Mutex
	changed   chan struct{}
}

func NewBufferWriter() *BufferWriter {
	return &BufferWriter{
		failAfter: -1,
		changed:   make(chan struct{}),
	}
}

// FailAfter makes every write after the first n writes fail with io.ErrClosedPipe.
func (bw *BufferWriter) FailAfter(n int) *BufferWriter {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	bw.failAfter = n
	return bw
}

func (bw *BufferWriter) Write(p []byte) (int, error) {
	bw.lock.Lock()
	defer bw.lock.Unlock()

	if bw.closed || (bw.failAfter >= 0 && bw.writes >= bw.failAfter) {
		return 0, io.ErrClosedPipe
	}

	bw.writes++
	bw.data = append(bw.data, p...)
	bw.notify()
	return len(p), nil
}

func (bw *BufferWriter) Bytes() []byte {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bytes.Clone(bw.data)
}

func (bw *BufferWriter) Writes() int {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bw.writes
}

func (bw *BufferWriter) Closed() bool {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	return bw.closed
}

func (bw *BufferWriter) Close() error {
	bw.lock.Lock()
	defer bw.lock.Unlock()
	if !bw.closed {
		bw.closed = true
		bw.notify()
	}
	return nil
}

// WaitForLen blocks until at least n bytes have been written, or the context is done.
func (bw *BufferWriter) WaitForLen(ctx context.Context, n int) error {
	for {
		bw.lock.Lock()
		current, changed := len(bw.data), bw.changed
		bw.lock.Unlock()

		if current >= n {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Must be called with the lock held.
func (bw *BufferWriter) notify() {
	close(bw.changed)
	bw.changed = make(chan struct{})
}

var _ io.WriteCloser = (*BufferWriter)(nil)
