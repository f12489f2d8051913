/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package tracelog writes the entries recorded by the interception pipeline
// to a rolling file, one JSON object per line.
package tracelog

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/lsp"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
)

var ErrNoPath = errors.New("trace log path must not be empty")

type Config struct {
	// Path of the active trace file. Rotated files are kept next to it.
	Path string

	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// Compress rotated files with gzip.
	Compress bool

	// SessionID, if set, is written to every line. Sessions sharing a file can be told apart by it.
	SessionID string
}

// Recorder is an lsp.Recorder that appends entries to a trace log.
type Recorder struct {
	log    *zap.Logger
	closer func() error
	once   sync.Once
}

// New creates a recorder writing to a rolling file described by the config.
func New(config Config) (*Recorder, error) {
	if config.Path == "" {
		return nil, ErrNoPath
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = DefaultMaxSizeMB
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = DefaultMaxBackups
	}

	sink := &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}

	r := NewWithWriter(zapcore.AddSync(sink))
	if config.SessionID != "" {
		r.log = r.log.With(zap.String("session", config.SessionID))
	}
	r.closer = sink.Close
	return r, nil
}

// NewWithWriter creates a recorder writing to an arbitrary destination.
func NewWithWriter(w zapcore.WriteSyncer) *Recorder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "kind",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(w), zap.InfoLevel)

	return &Recorder{
		log:    zap.New(core),
		closer: func() error { return nil },
	}
}

func (r *Recorder) Record(entry lsp.Entry) {
	ce := r.log.Check(zap.InfoLevel, entry.Kind)
	if ce == nil {
		return
	}
	if !entry.Time.IsZero() {
		ce.Time = entry.Time
	}

	fields := []zap.Field{
		zap.String("direction", entry.Direction.String()),
		zap.String("rule", entry.Rule),
	}
	if len(entry.Payload) > 0 {
		fields = append(fields, zap.Reflect("payload", entry.Payload))
	}
	ce.Write(fields...)
}

// Close flushes and closes the trace log. Entries recorded afterwards are lost.
func (r *Recorder) Close() error {
	var closeErr error
	r.once.Do(func() {
		_ = r.log.Sync()
		closeErr = r.closer()
	})
	return closeErr
}

var _ lsp.Recorder = (*Recorder)(nil)
