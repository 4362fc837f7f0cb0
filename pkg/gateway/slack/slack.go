// Package slack is the Socket Mode gateway connector: a concrete,
// representative binding of pkg/gateway's Connector to one chat platform,
// per SPEC_FULL.md §4.13.
package slack

import (
	"context"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/sipeed/cortexd/pkg/gateway"
	"github.com/sipeed/cortexd/pkg/logger"
)

// Connector is a Socket Mode Slack binding. It maps inbound message
// events to gateway.Envelope{Channel: "slack", ...} and forwards them to
// Sink, which is typically orchestrator.HandleUserMessage wrapped to the
// gateway.Sink shape.
type Connector struct {
	api    *slack.Client
	client *socketmode.Client
	sink   gateway.Sink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Connector from a bot token and an app-level token (both
// required for Socket Mode). sink receives every inbound message event.
func New(botToken, appToken string, sink gateway.Sink) *Connector {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)
	return &Connector{api: api, client: client, sink: sink}
}

func (c *Connector) Name() string { return "slack" }

// Start begins the Socket Mode event loop in the background and returns
// immediately once the client is listening. Stop must be called to shut
// it down cleanly.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.dispatchLoop(runCtx)

	go func() {
		defer close(c.done)
		if err := c.client.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			logger.ErrorCF("gateway.slack", "socket mode run exited", err, nil)
		}
	}()

	return nil
}

// Stop cancels the event loop and waits for it to exit.
func (c *Connector) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Connector) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.client.Events:
			if !ok {
				return
			}
			c.handleEvent(ctx, evt)
		}
	}
}

func (c *Connector) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		c.client.Ack(*evt.Request)
	}
	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" {
			return
		}
		env := gateway.Envelope{Channel: "slack", ChatID: ev.Channel, Text: ev.Text}
		if ev.Message != nil {
			for _, f := range ev.Message.Files {
				env.Media = append(env.Media, f.URLPrivate)
			}
		}
		if err := c.sink(ctx, env); err != nil {
			logger.WarnCF("gateway.slack", "sink rejected message", map[string]any{"error": err.Error()})
		}
	}
}
