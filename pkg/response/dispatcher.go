// Package response delivers replies to a scope on the host: one user, one channel
// (optionally with its subtree), a set of channels, or every running server.
package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sybot/pkg/bus"
	"sybot/pkg/murmur"
)

// ServerLister returns the servers that are running right now.
type ServerLister interface {
	RunningServers(ctx context.Context) ([]murmur.Server, error)
}

// Dispatcher sends text or HTML payloads to a scope.
type Dispatcher struct {
	servers ServerLister
	events  bus.Publisher
	log     *slog.Logger
}

// NewDispatcher creates a dispatcher. events may be nil.
func NewDispatcher(servers ServerLister, events bus.Publisher, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		servers: servers,
		events:  events,
		log:     log.With("component", "response.dispatcher"),
	}
}

// SendToUser sends a direct message to one session.
func (d *Dispatcher) SendToUser(ctx context.Context, server murmur.Server, session int, text string) error {
	if err := server.SendMessage(ctx, session, text); err != nil {
		return fmt.Errorf("send to session %d on server %d: %w", session, server.ID(), err)
	}
	return nil
}

// SendToChannel sends to one channel, and to its descendants when subtree is set.
func (d *Dispatcher) SendToChannel(ctx context.Context, server murmur.Server, channel int, subtree bool, text string) error {
	if err := server.SendMessageChannel(ctx, channel, subtree, text); err != nil {
		return fmt.Errorf("send to channel %d on server %d: %w", channel, server.ID(), err)
	}
	return nil
}

// SendToChannels sends exactly once to each channel id without subtree propagation.
// Every id is attempted; failures are joined.
func (d *Dispatcher) SendToChannels(ctx context.Context, server murmur.Server, channels []int, text string) error {
	var errs []error
	for _, channel := range channels {
		if err := d.SendToChannel(ctx, server, channel, false, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcast sends to the root channel and its subtree on every running server and
// returns how many servers accepted it. A failing server is logged and skipped; the
// error is only set when the running servers cannot be listed.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) (int, error) {
	servers, err := d.servers.RunningServers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running servers: %w", err)
	}

	delivered := 0
	for _, server := range servers {
		if err := d.SendToChannel(ctx, server, murmur.RootChannel, true, text); err != nil {
			d.log.Warn("Broadcast skipped server", "server_id", server.ID(), "error", err)
			continue
		}
		delivered++
	}

	d.log.Info("Broadcast sent", "servers", delivered, "attempted", len(servers))
	if d.events != nil {
		d.events.PublishEvent(ctx, bus.Event{
			Type:    bus.EventBroadcastSent,
			Payload: map[string]string{"delivered": fmt.Sprint(delivered), "attempted": fmt.Sprint(len(servers))},
		})
	}

	return delivered, nil
}
