/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/testutil"
)

func newDefaultPipeline(t *testing.T, recorder Recorder, opts RuleOptions) *Pipeline {
	return NewPipeline(testutil.NewLogForTesting(t.Name()), recorder, DefaultRules(opts)...)
}

func TestDefaultRulesOrder(t *testing.T) {
	t.Parallel()

	withoutOptions := newDefaultPipeline(t, nil, RuleOptions{})
	require.Equal(t, []string{
		RuleInitialize,
		RuleCancelRequest,
		RuleDidChangeConfiguration,
		RuleInitializeCapabilities,
	}, withoutOptions.Rules())

	withOptions := newDefaultPipeline(t, nil, RuleOptions{InitializationOptions: json.RawMessage(`{"sqls":{}}`)})
	require.Equal(t, []string{
		RuleInitialize,
		RuleInitializationOptions,
		RuleCancelRequest,
		RuleDidChangeConfiguration,
		RuleInitializeCapabilities,
	}, withOptions.Rules())
}

func TestCancelRequestIsDropped(t *testing.T) {
	t.Parallel()

	p := newDefaultPipeline(t, nil, RuleOptions{})
	msg := mustParse(t, `{"jsonrpc":"2.0","method":"$/cancelRequest","params":{"id":4}}`)

	outcome := p.Process(msg, Upstream)
	require.Equal(t, Drop, outcome.Verdict)

	// The rule is bound to the client side only.
	outcome = p.Process(msg, Downstream)
	require.Equal(t, Forward, outcome.Verdict)
}

func TestInitializeIsForwardedUnchanged(t *testing.T) {
	t.Parallel()

	recorder := &collectingRecorder{}
	p := newDefaultPipeline(t, recorder, RuleOptions{})
	msg := mustParse(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"processId":99,"capabilities":{}}}`)

	outcome := p.Process(msg, Upstream)
	require.Equal(t, Forward, outcome.Verdict)
	require.Same(t, msg, outcome.Message)
	require.Equal(t, json.RawMessage("1"), p.State().InitializeID())

	entries := recorder.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, RuleInitialize, entries[0].Rule)
	require.Equal(t, Upstream, entries[0].Direction)
	require.JSONEq(t, `{"processId":99,"capabilities":{}}`, string(entries[0].Payload))
}

func TestInitializeResponseCapabilitiesAreRecorded(t *testing.T) {
	t.Parallel()

	recorder := &collectingRecorder{}
	p := newDefaultPipeline(t, recorder, RuleOptions{})

	p.Process(mustParse(t, `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{}}`), Upstream)

	// Responses to other requests are not mistaken for the initialize response.
	other := mustParse(t, `{"jsonrpc":"2.0","id":2,"result":{"capabilities":{"bogus":true}}}`)
	require.Equal(t, Forward, p.Process(other, Downstream).Verdict)
	require.Len(t, recorder.Entries(), 1)
	select {
	case <-p.State().Initialized():
		require.Fail(t, "server is not initialized before the initialize response")
	default:
	}

	response := mustParse(t, `{"jsonrpc":"2.0","id":"init-1","result":{"capabilities":{"hoverProvider":true}}}`)
	outcome := p.Process(response, Downstream)
	require.Equal(t, Forward, outcome.Verdict)
	require.Same(t, response, outcome.Message)

	entries := recorder.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, RuleInitializeCapabilities, entries[1].Rule)
	require.Equal(t, Downstream, entries[1].Direction)
	require.JSONEq(t, `{"hoverProvider":true}`, string(entries[1].Payload))
	require.Nil(t, p.State().InitializeID(), "the initialize request is answered only once")
	select {
	case <-p.State().Initialized():
	default:
		require.Fail(t, "server is initialized after a successful initialize response")
	}

	// A second response with the same id is not recorded again.
	p.Process(response, Downstream)
	require.Len(t, recorder.Entries(), 2)
}

func TestFailedInitializeDoesNotInitialize(t *testing.T) {
	t.Parallel()

	recorder := &collectingRecorder{}
	p := newDefaultPipeline(t, recorder, RuleOptions{})

	p.Process(mustParse(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`), Upstream)
	failed := mustParse(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"no connection"}}`)
	require.Equal(t, Forward, p.Process(failed, Downstream).Verdict)

	require.Len(t, recorder.Entries(), 1, "no capabilities are recorded for a failed initialize")
	require.Nil(t, p.State().InitializeID())
	select {
	case <-p.State().Initialized():
		require.Fail(t, "a failed initialize request does not initialize the server")
	default:
	}
}

func TestDidChangeConfigurationIsRecorded(t *testing.T) {
	t.Parallel()

	recorder := &collectingRecorder{}
	p := newDefaultPipeline(t, recorder, RuleOptions{})
	msg := mustParse(t, `{"jsonrpc":"2.0","method":"workspace/didChangeConfiguration","params":{"settings":{"sqls":{}}}}`)

	outcome := p.Process(msg, Upstream)
	require.Equal(t, Forward, outcome.Verdict)
	require.Same(t, msg, outcome.Message)

	entries := recorder.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, RuleDidChangeConfiguration, entries[0].Rule)
}

func TestInitializationOptionsAreInjected(t *testing.T) {
	t.Parallel()

	options := json.RawMessage(`{"sqls":{"connections":[{"driver":"postgresql","dataSourceName":"host=localhost"}]}}`)

	type testcase struct {
		description string
		params      string
		replaced    bool
	}

	testcases := []testcase{
		{"no options", `{"processId":1}`, true},
		{"null options", `{"processId":1,"initializationOptions":null}`, true},
		{"no params", ``, true},
		{"client options win", `{"processId":1,"initializationOptions":{"sqls":{}}}`, false},
		{"params not an object", `[1,2]`, false},
	}

	for _, tc := range testcases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			body := `{"jsonrpc":"2.0","id":1,"method":"initialize"}`
			if tc.params != "" {
				body = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":` + tc.params + `}`
			}
			msg := mustParse(t, body)

			p := newDefaultPipeline(t, nil, RuleOptions{InitializationOptions: options})
			outcome := p.Process(msg, Upstream)

			if !tc.replaced {
				require.Equal(t, Forward, outcome.Verdict)
				require.Same(t, msg, outcome.Message)
				return
			}

			require.Equal(t, Replace, outcome.Verdict)
			require.Equal(t, "initialize", outcome.Message.Method)
			require.Equal(t, "1", outcome.Message.IDString())

			var params map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(outcome.Message.Params, &params))
			require.JSONEq(t, string(options), string(params["initializationOptions"]))

			// The original message is left alone.
			require.NotEqual(t, outcome.Message.Params, msg.Params)
		})
	}
}
