/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"bytes"
	"encoding/json"
)

const (
	MethodInitialize               = "initialize"
	MethodCancelRequest            = "$/cancelRequest"
	MethodDidChangeConfiguration   = "workspace/didChangeConfiguration"
	initializationOptionsParameter = "initializationOptions"

	RuleInitialize             = "initialize"
	RuleInitializationOptions  = "initialization-options"
	RuleCancelRequest          = "cancel-request"
	RuleDidChangeConfiguration = "did-change-configuration"
	RuleInitializeCapabilities = "initialize-capabilities"
)

// RuleOptions configures the built-in rules.
type RuleOptions struct {
	// InitializationOptions, when set, is injected into initialize requests that carry none.
	InitializationOptions json.RawMessage
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules(opts RuleOptions) []Rule {
	rules := []Rule{InitializeRule()}
	if len(bytes.TrimSpace(opts.InitializationOptions)) > 0 {
		rules = append(rules, InitializationOptionsRule(opts.InitializationOptions))
	}
	return append(rules,
		CancelRequestRule(),
		DidChangeConfigurationRule(),
		InitializeCapabilitiesRule(),
	)
}

// InitializeRule logs the full contents of the initialize request, remembers its id
// and forwards it unchanged.
func InitializeRule() Rule {
	return Rule{
		Name:      RuleInitialize,
		Direction: Upstream,
		Apply: func(rc RuleContext, msg *Message) Outcome {
			if msg.Method != MethodInitialize {
				return Pass()
			}

			if msg.HasID() {
				rc.State.SetInitializeID(msg.ID)
			}

			rc.Log.Info("Initialize request", "id", msg.IDString(), "params", indentJSON(msg.Params))
			rc.Record("initialize-request", msg.Params)
			return Pass()
		},
	}
}

// InitializationOptionsRule replaces an initialize request that carries no initialization options
// with a copy carrying the given options.
func InitializationOptionsRule(options json.RawMessage) Rule {
	return Rule{
		Name:      RuleInitializationOptions,
		Direction: Upstream,
		Apply: func(rc RuleContext, msg *Message) Outcome {
			if msg.Method != MethodInitialize {
				return Pass()
			}

			params := map[string]json.RawMessage{}
			if len(bytes.TrimSpace(msg.Params)) > 0 && !bytes.Equal(bytes.TrimSpace(msg.Params), []byte("null")) {
				if unmarshalErr := json.Unmarshal(msg.Params, &params); unmarshalErr != nil {
					rc.Log.Error(unmarshalErr, "Initialize params are not an object, leaving the request unchanged")
					return Pass()
				}
			}

			if existing, found := params[initializationOptionsParameter]; found && !bytes.Equal(bytes.TrimSpace(existing), []byte("null")) {
				rc.Log.V(1).Info("Initialize request already carries initialization options")
				return Pass()
			}

			params[initializationOptionsParameter] = options
			rawParams, marshalErr := json.Marshal(params)
			if marshalErr != nil {
				rc.Log.Error(marshalErr, "Could not add initialization options to initialize request")
				return Pass()
			}

			rc.Log.Info("Injecting initialization options", "options", indentJSON(options))
			rc.Record("initialization-options", options)
			return ReplaceWith(msg.WithParams(rawParams))
		},
	}
}

// CancelRequestRule drops $/cancelRequest notifications.
func CancelRequestRule() Rule {
	return Rule{
		Name:      RuleCancelRequest,
		Direction: Upstream,
		Apply: func(rc RuleContext, msg *Message) Outcome {
			if msg.Method != MethodCancelRequest {
				return Pass()
			}

			rc.Log.Info("Ignoring cancel request", "params", string(compactJSON(msg.Params)))
			return DropMessage()
		},
	}
}

// DidChangeConfigurationRule logs configuration change notifications and forwards them unchanged.
func DidChangeConfigurationRule() Rule {
	return Rule{
		Name:      RuleDidChangeConfiguration,
		Direction: Upstream,
		Apply: func(rc RuleContext, msg *Message) Outcome {
			if msg.Method != MethodDidChangeConfiguration {
				return Pass()
			}

			rc.Log.Info("Configuration changed", "params", indentJSON(msg.Params))
			rc.Record("configuration", msg.Params)
			return Pass()
		},
	}
}

// InitializeCapabilitiesRule logs the capabilities from the response to the initialize request.
func InitializeCapabilitiesRule() Rule {
	return Rule{
		Name:      RuleInitializeCapabilities,
		Direction: Downstream,
		Apply: func(rc RuleContext, msg *Message) Outcome {
			if !msg.IsResponse() {
				return Pass()
			}

			initializeID := rc.State.InitializeID()
			if initializeID == nil || !msg.SameID(initializeID) {
				return Pass()
			}
			rc.State.ClearInitializeID()
			if len(msg.Error) > 0 {
				rc.Log.Info("Initialize request failed", "id", msg.IDString(), "error", string(msg.Error))
				return Pass()
			}
			rc.State.MarkInitialized()

			var result struct {
				Capabilities json.RawMessage `json:"capabilities"`
			}
			if len(msg.Result) > 0 {
				if unmarshalErr := json.Unmarshal(msg.Result, &result); unmarshalErr != nil {
					rc.Log.V(1).Info("Initialize result is not an object", "error", unmarshalErr.Error())
				}
			}

			rc.Log.Info("Initialize response", "id", msg.IDString(), "capabilities", indentJSON(result.Capabilities))
			rc.Record("capabilities", result.Capabilities)
			return Pass()
		},
	}
}

// indentJSON renders raw JSON for human-readable logs.
func indentJSON(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null"
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
