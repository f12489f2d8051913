/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"bytes"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultMaxHeaderBytes is the default limit for a header block. Real headers are a few dozen bytes.
	DefaultMaxHeaderBytes = 64 * 1024

	contentLengthHeader = "Content-Length"

	// Number of header bytes quoted in a FramingError.
	headerPreviewLength = 64
)

var (
	headerTerminator   = []byte("\r\n\r\n")
	contentLengthToken = []byte(contentLengthHeader)
)

// frameHeader is a parsed header block whose body has not fully arrived yet.
type frameHeader struct {
	headerLength  int
	contentLength int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxHeaderBytes sets the number of bytes the decoder accumulates while looking for
// the end of a header block before it gives up on them.
func WithMaxHeaderBytes(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxHeaderBytes = n
		}
	}
}

// WithMaxContentLength sets the largest body the decoder accepts. Larger frames are skipped
// as framing errors. Zero (the default) means no limit.
func WithMaxContentLength(n int) DecoderOption {
	return func(d *Decoder) {
		if n >= 0 {
			d.maxContentLength = n
		}
	}
}

// Decoder splits a byte stream delivered in arbitrary chunks into messages.
// A Decoder holds the buffering state of a single stream and is not safe for concurrent use;
// each direction of a proxy owns its own instance.
type Decoder struct {
	buf []byte

	// scanned is the length of the buffer prefix that is known not to contain the header terminator.
	scanned int

	// pending is the header of a frame whose body is still incomplete.
	pending *frameHeader

	// skip is the number of bytes of a rejected frame body that have not arrived yet.
	skip int

	maxHeaderBytes   int
	maxContentLength int
}

// NewDecoder creates a Decoder with an empty buffer.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		maxHeaderBytes: DefaultMaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends a chunk to the decoder buffer and returns the sequence of messages that can be
// extracted from the buffered bytes. Each element is either a message or a recoverable decode error
// (*FramingError or *PayloadDecodeError); decoding continues after an error.
//
// The sequence extracts messages lazily. Messages that are not consumed (because iteration stopped
// early) stay buffered and are produced by the sequence returned from the next Feed call.
func (d *Decoder) Feed(chunk []byte) iter.Seq2[*Message, error] {
	if len(chunk) > 0 {
		d.buf = append(d.buf, chunk...)
	}

	return func(yield func(*Message, error) bool) {
		for {
			msg, err, ok := d.next()
			if !ok {
				return
			}
			if !yield(msg, err) {
				return
			}
		}
	}
}

// Buffered returns the number of bytes retained by the decoder (a partial header or body).
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// next extracts a single message or decode error from the buffer.
// The last result is false if the buffer does not hold a complete frame.
func (d *Decoder) next() (*Message, error, bool) {
	if d.skip > 0 {
		n := min(d.skip, len(d.buf))
		d.consume(n)
		d.skip -= n
		if d.skip > 0 {
			return nil, nil, false
		}
	}

	if d.pending == nil {
		header, framingErr, found := d.scanHeader()
		if framingErr != nil {
			return nil, framingErr, true
		}
		if !found {
			return nil, nil, false
		}
		d.pending = header
	}

	total := d.pending.headerLength + d.pending.contentLength
	if len(d.buf) < total {
		return nil, nil, false
	}

	body := d.buf[d.pending.headerLength:total]
	msg, parseErr := parseMessage(body)
	var decodeErr error
	if parseErr != nil {
		decodeErr = &PayloadDecodeError{Body: bytes.Clone(body), Err: parseErr}
	}

	d.consume(total)
	return msg, decodeErr, true
}

// scanHeader looks for a complete header block at the start of the buffer.
// Scanning resumes where the previous unsuccessful scan stopped.
func (d *Decoder) scanHeader() (*frameHeader, *FramingError, bool) {
	start := max(0, d.scanned-len(headerTerminator)+1)
	idx := bytes.Index(d.buf[start:], headerTerminator)
	if idx < 0 {
		d.scanned = len(d.buf)
		if len(d.buf) > d.maxHeaderBytes {
			return nil, d.dropOversizedHeader(), false
		}
		return nil, nil, false
	}

	blockEnd := start + idx
	headerLength := blockEnd + len(headerTerminator)
	contentLength, parseErr := parseHeaderBlock(d.buf[:blockEnd])

	if parseErr != nil {
		// Leftovers of a damaged frame end up in front of the next header, on the same line.
		if resync := indexGluedContentLength(d.buf[:blockEnd]); resync > 0 {
			return nil, d.skipFraming(resync, ErrUnexpectedBytes), false
		}
		return nil, d.skipFraming(headerLength, parseErr), false
	}

	if contentLength > math.MaxInt-headerLength {
		return nil, d.skipFraming(headerLength, ErrInvalidContentLength), false
	}

	if d.maxContentLength > 0 && contentLength > d.maxContentLength {
		framingErr := &FramingError{
			Header:  headerPreview(d.buf[:blockEnd]),
			Skipped: headerLength + contentLength,
			Err:     fmt.Errorf("%w: %d bytes exceeds the limit of %d bytes", ErrInvalidContentLength, contentLength, d.maxContentLength),
		}
		d.consume(headerLength)
		d.skip = contentLength
		return nil, framingErr, false
	}

	return &frameHeader{headerLength: headerLength, contentLength: contentLength}, nil, true
}

// skipFraming drops the first n bytes of the buffer and reports them as a framing error.
func (d *Decoder) skipFraming(n int, cause error) *FramingError {
	framingErr := &FramingError{
		Header:  headerPreview(d.buf[:n]),
		Skipped: n,
		Err:     cause,
	}
	d.consume(n)
	return framingErr
}

// dropOversizedHeader discards a buffer that has grown past the header size limit without a terminator.
// A header that starts later in the buffer, or a partial Content-Length name at its end, is kept.
func (d *Decoder) dropOversizedHeader() *FramingError {
	n := len(d.buf)
	if last := lastIndexContentLength(d.buf); last > 0 {
		n = last
	} else if keep := contentLengthPrefixSuffix(d.buf); keep < n {
		n -= keep
	}
	return d.skipFraming(n, ErrHeaderTooLarge)
}

// consume drops the first n bytes of the buffer and resets the scan state.
func (d *Decoder) consume(n int) {
	d.buf = d.buf[n:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	d.scanned = 0
	d.pending = nil
}

// parseHeaderBlock returns the Content-Length of a header block (without the terminator).
// Header names are case-insensitive and may appear in any order; lines that are not
// headers are ignored.
func parseHeaderBlock(block []byte) (int, error) {
	found := false
	contentLength := 0

	for _, line := range strings.Split(string(block), "\r\n") {
		name, value, isHeader := strings.Cut(line, ":")
		if !isHeader || !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			continue
		}

		n, err := parseContentLength(value)
		if err != nil {
			return 0, err
		}
		found = true
		contentLength = n
	}

	if !found {
		return 0, ErrMissingContentLength
	}
	return contentLength, nil
}

func parseContentLength(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidContentLength
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, ErrInvalidContentLength
		}
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, ErrInvalidContentLength
	}
	return n, nil
}

// indexGluedContentLength returns the position of the first Content-Length name that does not
// start a header line, or -1.
func indexGluedContentLength(block []byte) int {
	for i := 1; i+len(contentLengthToken) <= len(block); i++ {
		if block[i-1] != '\n' && bytes.EqualFold(block[i:i+len(contentLengthToken)], contentLengthToken) {
			return i
		}
	}
	return -1
}

// lastIndexContentLength returns the position of the last Content-Length name in b, or -1.
func lastIndexContentLength(b []byte) int {
	for i := len(b) - len(contentLengthToken); i >= 0; i-- {
		if bytes.EqualFold(b[i:i+len(contentLengthToken)], contentLengthToken) {
			return i
		}
	}
	return -1
}

// contentLengthPrefixSuffix returns the length of the longest suffix of b that could be
// the beginning of a Content-Length name.
func contentLengthPrefixSuffix(b []byte) int {
	for n := min(len(b), len(contentLengthToken)-1); n > 0; n-- {
		if bytes.EqualFold(b[len(b)-n:], contentLengthToken[:n]) {
			return n
		}
	}
	return 0
}

func headerPreview(header []byte) string {
	if len(header) > headerPreviewLength {
		header = header[:headerPreviewLength]
	}
	return string(header)
}
