/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const jsonrpcVersion = "2.0"

// Direction indicates the flow direction of a message through the proxy.
type Direction int

const (
	// Upstream indicates a message flowing from the client (editor) to the language server.
	Upstream Direction = iota
	// Downstream indicates a message flowing from the language server to the client.
	Downstream
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Message is a single JSON-RPC message.
// A message with a method and an id is a request, a message with a method and no id
// is a notification, and a message without a method is a response.
type Message struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`

	// raw holds the body bytes the message was decoded from.
	// Nil for constructed or modified messages.
	raw []byte
}

// NewRequest creates a request message with the given id, method and params.
func NewRequest(id any, method string, params any) (*Message, error) {
	rawID, idErr := json.Marshal(id)
	if idErr != nil {
		return nil, fmt.Errorf("failed to marshal request id: %w", idErr)
	}

	msg, msgErr := NewNotification(method, params)
	if msgErr != nil {
		return nil, msgErr
	}
	msg.ID = rawID
	return msg, nil
}

// NewNotification creates a notification message with the given method and params.
func NewNotification(method string, params any) (*Message, error) {
	msg := &Message{
		JSONRPC: jsonrpcVersion,
		Method:  method,
	}

	if params != nil {
		rawParams, paramsErr := json.Marshal(params)
		if paramsErr != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, paramsErr)
		}
		msg.Params = rawParams
	}

	return msg, nil
}

// parseMessage decodes a message body. The body must be a JSON object.
func parseMessage(body []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("message body is not a JSON object")
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, err
	}

	msg.raw = bytes.Clone(body)
	return &msg, nil
}

// HasID reports whether the message carries a correlation id. A JSON null id counts as absent.
func (m *Message) HasID() bool {
	id := bytes.TrimSpace(m.ID)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// IsRequest reports whether the message is a request (method and id).
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.HasID()
}

// IsNotification reports whether the message is a notification (method, no id).
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.HasID()
}

// IsResponse reports whether the message is a response (no method).
func (m *Message) IsResponse() bool {
	return m.Method == ""
}

// IDString returns the correlation id in its JSON form (strings keep their quotes),
// or an empty string if the message has no id.
func (m *Message) IDString() string {
	if !m.HasID() {
		return ""
	}
	return string(compactJSON(m.ID))
}

// SameID reports whether the message id equals the given JSON id, ignoring insignificant whitespace.
func (m *Message) SameID(id json.RawMessage) bool {
	if !m.HasID() || len(bytes.TrimSpace(id)) == 0 {
		return false
	}
	return bytes.Equal(compactJSON(m.ID), compactJSON(id))
}

// WithParams returns a copy of the message carrying the given params.
// The copy is re-serialized when encoded.
func (m *Message) WithParams(params json.RawMessage) *Message {
	clone := *m
	clone.Params = params
	clone.raw = nil
	return &clone
}

// Describe returns a short description of the message for diagnostics.
func (m *Message) Describe() string {
	switch {
	case m.IsRequest():
		return fmt.Sprintf("%s (id: %s)", m.Method, m.IDString())
	case m.IsNotification():
		return m.Method
	default:
		return fmt.Sprintf("Response %s", m.IDString())
	}
}

// body returns the bytes to put on the wire: the original bytes if the message
// came from the wire unmodified, otherwise its canonical JSON serialization.
func (m *Message) body() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(m)
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return bytes.TrimSpace(raw)
	}
	return buf.Bytes()
}
