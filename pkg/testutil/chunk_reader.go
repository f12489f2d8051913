/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"io"
	"sync"
)

// ChunkReader is an io.ReadCloser that returns the chunks added to it, one chunk (or part of it) per Read.
// Reads block until a chunk is available. Once EOF has been added (or the reader is closed)
// and all chunks are consumed, Read returns the terminal error.
type ChunkReader struct {
	chunks   chan []byte
	current  []byte
	err      error
	endOnce  sync.Once
	readLock sync.Mutex
}

func NewChunkReader() *ChunkReader {
	return &ChunkReader{
		chunks: make(chan []byte, 4096),
	}
}

// Add queues chunks to be returned by subsequent reads.
func (cr *ChunkReader) Add(chunks ...[]byte) {
	for _, c := range chunks {
		copied := make([]byte, len(c))
		copy(copied, c)
		cr.chunks <- copied
	}
}

// AddSplit queues data split into chunks of the given size.
func (cr *ChunkReader) AddSplit(data []byte, chunkSize int) {
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		cr.Add(data[:n])
		data = data[n:]
	}
}

// End makes the reader return io.EOF once all queued chunks are consumed.
func (cr *ChunkReader) End() {
	cr.endWith(io.EOF)
}

// EndWithError makes the reader return the given error once all queued chunks are consumed.
func (cr *ChunkReader) EndWithError(err error) {
	cr.endWith(err)
}

func (cr *ChunkReader) endWith(err error) {
	cr.endOnce.Do(func() {
		cr.err = err
		cr.chunks <- nil
		close(cr.chunks)
	})
}

func (cr *ChunkReader) Read(p []byte) (int, error) {
	cr.readLock.Lock()
	defer cr.readLock.Unlock()

	for len(cr.current) == 0 {
		chunk, ok := <-cr.chunks
		if !ok || chunk == nil {
			return 0, cr.terminalErr()
		}
		cr.current = chunk
	}

	n := copy(p, cr.current)
	cr.current = cr.current[n:]
	return n, nil
}

func (cr *ChunkReader) Close() error {
	cr.endWith(io.ErrClosedPipe)
	return nil
}

func (cr *ChunkReader) terminalErr() error {
	if cr.err == nil {
		return io.EOF
	}
	return cr.err
}

var _ io.ReadCloser = (*ChunkReader)(nil)
