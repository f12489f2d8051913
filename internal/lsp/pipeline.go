/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrTomatePNG/zed-sqls-extension/pkg/resiliency"
)

// Verdict is the kind of outcome a rule produces for a message.
type Verdict int

const (
	// Forward passes the message on (unchanged if it comes from Pass).
	Forward Verdict = iota
	// Replace forwards a replacement message instead of the original one.
	Replace
	// Drop suppresses the message; nothing is written to the destination.
	Drop
)

func (v Verdict) String() string {
	switch v {
	case Forward:
		return "forward"
	case Replace:
		return "replace"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Outcome is the result of running a message through a rule or the whole pipeline.
// Message is set for Forward (the message to forward) and Replace (the replacement).
type Outcome struct {
	Verdict Verdict
	Message *Message
}

// Pass lets the message continue to the next rule.
func Pass() Outcome {
	return Outcome{Verdict: Forward}
}

// ReplaceWith forwards msg instead of the original message and skips the remaining rules.
func ReplaceWith(msg *Message) Outcome {
	return Outcome{Verdict: Replace, Message: msg}
}

// DropMessage suppresses the message and skips the remaining rules.
func DropMessage() Outcome {
	return Outcome{Verdict: Drop}
}

// ShortCircuits reports whether the outcome ends rule evaluation.
func (o Outcome) ShortCircuits() bool {
	return o.Verdict == Drop || (o.Verdict == Replace && o.Message != nil)
}

// AnyDirection makes a rule apply to messages flowing in both directions.
const AnyDirection Direction = -1

// RuleFunc inspects a message and decides what happens to it.
// It may perform observational side effects through the RuleContext.
type RuleFunc func(rc RuleContext, msg *Message) Outcome

// Rule is a named step of the interception pipeline.
type Rule struct {
	Name string

	// Direction restricts the rule to one direction. Use AnyDirection for both.
	Direction Direction

	Apply RuleFunc
}

func (r Rule) appliesTo(dir Direction) bool {
	return r.Direction == AnyDirection || r.Direction == dir
}

// RuleContext gives a rule access to pipeline-owned state and side-effect sinks.
type RuleContext struct {
	Direction Direction
	Log       logr.Logger
	State     *SessionState
	recorder  Recorder
	rule      string
}

// Record sends an entry to the pipeline's recorder, stamped with the rule name and direction.
func (rc RuleContext) Record(kind string, payload json.RawMessage) {
	rc.recorder.Record(Entry{
		Time:      time.Now(),
		Direction: rc.Direction,
		Rule:      rc.rule,
		Kind:      kind,
		Payload:   payload,
	})
}

// SessionState is the state shared by the rules of one pipeline.
// It is written by the upstream side and read by the downstream side.
type SessionState struct {
	mu           sync.Mutex
	initializeID json.RawMessage
	initialized  chan struct{}
}

// SetInitializeID remembers the id of the pending initialize request.
func (s *SessionState) SetInitializeID(id json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializeID = append(json.RawMessage(nil), id...)
}

// InitializeID returns the id of the pending initialize request, or nil.
func (s *SessionState) InitializeID() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeID
}

// ClearInitializeID forgets the pending initialize request once its response went through.
func (s *SessionState) ClearInitializeID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializeID = nil
}

// MarkInitialized records that the server answered the initialize request successfully.
func (s *SessionState) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.initializedChan()
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Initialized returns a channel that is closed once the server has been initialized.
func (s *SessionState) Initialized() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializedChan()
}

func (s *SessionState) initializedChan() chan struct{} {
	if s.initialized == nil {
		s.initialized = make(chan struct{})
	}
	return s.initialized
}

// Pipeline runs messages through an ordered list of rules.
// Rules run in the configured order; the first rule that drops or replaces a message
// ends evaluation for that message. Process is safe for concurrent use by both directions.
type Pipeline struct {
	rules    []Rule
	state    *SessionState
	recorder Recorder
	log      logr.Logger
}

// NewPipeline creates a pipeline with the given rules. A nil recorder disables recording.
func NewPipeline(log logr.Logger, recorder Recorder, rules ...Rule) *Pipeline {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}

	configured := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Apply == nil {
			continue
		}
		configured = append(configured, r)
	}

	return &Pipeline{
		rules:    configured,
		state:    &SessionState{},
		recorder: recorder,
		log:      log.WithName("pipeline"),
	}
}

// Rules returns the names of the configured rules in evaluation order.
func (p *Pipeline) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// State returns the pipeline-owned session state.
func (p *Pipeline) State() *SessionState {
	return p.state
}

// Process runs the message through the rules that apply to the direction.
// The returned outcome is Forward with the original message, Replace with the
// replacement message, or Drop.
func (p *Pipeline) Process(msg *Message, dir Direction) Outcome {
	for _, r := range p.rules {
		if !r.appliesTo(dir) {
			continue
		}

		outcome := p.apply(r, msg, dir)
		if !outcome.ShortCircuits() {
			continue
		}

		p.log.V(1).Info("Rule short-circuited message",
			"rule", r.Name,
			"verdict", outcome.Verdict.String(),
			"direction", dir.String(),
			"message", msg.Describe())
		return outcome
	}

	return Outcome{Verdict: Forward, Message: msg}
}

// apply runs a single rule. A rule that panics is logged and treated as Pass.
func (p *Pipeline) apply(r Rule, msg *Message, dir Direction) (outcome Outcome) {
	defer func() {
		if panicErr := resiliency.MakePanicError(recover(), p.log.WithValues("rule", r.Name), "Rule panicked, forwarding message unchanged"); panicErr != nil {
			outcome = Pass()
		}
	}()

	rc := RuleContext{
		Direction: dir,
		Log:       p.log.WithName(r.Name),
		State:     p.state,
		recorder:  p.recorder,
		rule:      r.Name,
	}
	return r.Apply(rc, msg)
}
