/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"encoding/json"
	"time"
)

// Entry is a structured record emitted by a rule as an observational side effect.
type Entry struct {
	Time      time.Time
	Direction Direction
	Rule      string
	Kind      string
	Payload   json.RawMessage
}

// Recorder is an append-only sink for entries produced by the interception pipeline.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(entry Entry)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(Entry)

func (f RecorderFunc) Record(entry Entry) {
	f(entry)
}

// NopRecorder discards all entries.
type NopRecorder struct{}

func (NopRecorder) Record(Entry) {}

var _ Recorder = NopRecorder{}
var _ Recorder = RecorderFunc(nil)
