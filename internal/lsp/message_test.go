/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/testutil"
)

func mustParse(t *testing.T, body string) *Message {
	t.Helper()
	msg, err := parseMessage([]byte(body))
	require.NoError(t, err)
	return msg
}

func TestMessageKinds(t *testing.T) {
	t.Parallel()

	request := mustParse(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.True(t, request.IsRequest())
	require.False(t, request.IsNotification())
	require.False(t, request.IsResponse())
	require.Equal(t, "initialize (id: 1)", request.Describe())

	notification := mustParse(t, `{"jsonrpc":"2.0","method":"$/cancelRequest","params":{"id":1}}`)
	require.True(t, notification.IsNotification())
	require.False(t, notification.HasID())
	require.Equal(t, "$/cancelRequest", notification.Describe())

	nullID := mustParse(t, `{"jsonrpc":"2.0","id":null,"method":"exit"}`)
	require.True(t, nullID.IsNotification(), "a null id counts as no id")

	response := mustParse(t, `{"jsonrpc":"2.0","id":"x-1","result":null}`)
	require.True(t, response.IsResponse())
	require.Equal(t, `"x-1"`, response.IDString())
	require.Equal(t, `Response "x-1"`, response.Describe())
}

func TestMessageSameID(t *testing.T) {
	t.Parallel()

	msg := mustParse(t, `{"id": 7 ,"result":{}}`)
	require.True(t, msg.SameID(json.RawMessage("7")))
	require.True(t, msg.SameID(json.RawMessage(" 7 ")))
	require.False(t, msg.SameID(json.RawMessage(`"7"`)), "number and string ids are different")
	require.False(t, msg.SameID(nil))

	noID := mustParse(t, `{"method":"initialized"}`)
	require.False(t, noID.SameID(json.RawMessage("7")))
}

func TestNewRequestAndNotification(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(3, "workspace/executeCommand", map[string]any{"command": "switchDatabase"})
	require.NoError(t, err)
	require.True(t, req.IsRequest())
	require.Equal(t, "3", req.IDString())

	frame, err := Encode(req)
	require.NoError(t, err)

	decoded := feedAll(NewDecoder(), frame)
	require.Empty(t, decoded.errors)
	require.Len(t, decoded.messages, 1)
	require.Equal(t, "workspace/executeCommand", decoded.messages[0].Method)
	require.JSONEq(t, `{"command":"switchDatabase"}`, string(decoded.messages[0].Params))
	require.Equal(t, jsonrpcVersion, decoded.messages[0].JSONRPC)

	notification, err := NewNotification("initialized", nil)
	require.NoError(t, err)
	require.True(t, notification.IsNotification())
	require.Nil(t, notification.Params)

	_, err = NewNotification("bad", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}

func TestEncodeWritesExactHeader(t *testing.T) {
	t.Parallel()

	body := `{"id":1,"method":"a"}`
	msg := mustParse(t, body)

	frame, err := Encode(msg)
	require.NoError(t, err)
	require.Equal(t, "Content-Length: 21\r\n\r\n"+body, string(frame))

	_, err = Encode(nil)
	require.Error(t, err)
}

func TestEncodeKeepsOriginalBytes(t *testing.T) {
	t.Parallel()

	// Key order and whitespace of unmodified messages survive the round trip.
	body := "{ \"method\" : \"textDocument/hover\",\n  \"id\": 12, \"jsonrpc\": \"2.0\", \"params\": {\"z\": 1, \"a\": 2} }"
	msg := mustParse(t, body)

	frame, err := Encode(msg)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(frame, []byte(body)))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":"file:///tmp/ß"}}`,
		`{"jsonrpc":"2.0","method":"textDocument/didOpen","params":{"textDocument":{"text":"SELECT 1;\n"}}}`,
		`{"jsonrpc":"2.0","id":"req-2","error":{"code":-32601,"message":"not found"}}`,
	}

	for _, body := range bodies {
		original := mustParse(t, body)
		frame, err := Encode(original)
		require.NoError(t, err)

		result := feedAll(NewDecoder(), frame)
		require.Empty(t, result.errors)
		require.Len(t, result.messages, 1)
		require.Equal(t, original, result.messages[0])
	}

	// Re-serialized messages are semantically equal.
	modified := mustParse(t, bodies[0]).WithParams(json.RawMessage(`{"rootUri":"file:///other"}`))
	frame, err := Encode(modified)
	require.NoError(t, err)
	result := feedAll(NewDecoder(), frame)
	require.Len(t, result.messages, 1)
	require.Empty(t, cmp.Diff(modified, result.messages[0], cmpopts.IgnoreUnexported(Message{})))
	require.Nil(t, modified.raw)
	require.NotNil(t, result.messages[0].raw)
}

func TestFrameWriter(t *testing.T) {
	t.Parallel()

	sink := testutil.NewBufferWriter()
	fw := NewFrameWriter(sink)

	require.NoError(t, fw.WriteMessage(mustParse(t, `{"id":1,"method":"a"}`)))
	require.NoError(t, fw.WriteFrame([]byte(frame(`{"id":2,"method":"b"}`))))
	require.Equal(t, frame(`{"id":1,"method":"a"}`)+frame(`{"id":2,"method":"b"}`), string(sink.Bytes()))

	require.NoError(t, sink.Close())
	require.Error(t, fw.WriteMessage(mustParse(t, `{"id":3,"method":"c"}`)))
}
