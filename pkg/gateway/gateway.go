// Package gateway defines the inbound webhook/connector contract shared by
// every chat-platform binding and the generic POST /hooks/agent surface,
// per spec §4.9's Nudge note and SPEC_FULL.md §4.13.
package gateway

import "context"

// Envelope is one inbound message, normalized across every transport
// (Slack socket events, generic webhook POSTs) before it reaches the
// orchestrator.
type Envelope struct {
	Channel string
	ChatID  string
	Text    string
	Media   []string
}

// Sink receives a normalized Envelope. The HTTP edge's /hooks/agent
// handler and every Connector call the same Sink, so inbound messages are
// indistinguishable by the time they reach the orchestrator.
type Sink func(ctx context.Context, env Envelope) error

// Connector is a long-lived inbound binding for one chat platform.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
