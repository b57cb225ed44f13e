package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"

	"sybot/pkg/command"
	"sybot/pkg/murmur"
)

// ServerObserver receives the events of one server. Only text messages have
// consequences; everything else is logged.
type ServerObserver struct {
	server murmur.Server
	router Router
	log    *slog.Logger

	detached atomic.Bool
}

func newServerObserver(server murmur.Server, router Router, log *slog.Logger) *ServerObserver {
	return &ServerObserver{
		server: server,
		router: router,
		log:    log.With("component", "bridge.observer", "server_id", server.ID()),
	}
}

// Server returns the observed server.
func (o *ServerObserver) Server() murmur.Server {
	return o.server
}

// Detached reports whether the server stopped after this observer was attached.
func (o *ServerObserver) Detached() bool {
	return o.detached.Load()
}

func (o *ServerObserver) detach() {
	o.detached.Store(true)
}

func (o *ServerObserver) UserConnected(_ context.Context, user murmur.User) {
	o.log.Info("User connected", "name", user.Name, "session", user.Session, "address", user.Address.String())
}

func (o *ServerObserver) UserDisconnected(_ context.Context, user murmur.User) {
	o.log.Info("User disconnected", "name", user.Name, "session", user.Session)
}

func (o *ServerObserver) UserStateChanged(_ context.Context, user murmur.User) {
	o.log.Debug("User state changed",
		"name", user.Name,
		"channel", user.Channel,
		"muted", user.Muted(),
		"deafened", user.Deafened(),
		"recording", user.Recording,
	)
}

// UserTextMessage routes the message to the command router unless the server has
// stopped in the meantime.
func (o *ServerObserver) UserTextMessage(ctx context.Context, sender *murmur.User, event murmur.TextMessage) {
	if o.Detached() {
		o.log.Debug("Dropping text message from detached server")
		return
	}

	msg := command.NewMessage(o.server, sender, event)
	o.log.Debug("Text message", "sender", msg.SenderName(), "text", event.Text)
	o.router.Dispatch(ctx, msg)
}

func (o *ServerObserver) ChannelCreated(_ context.Context, channel murmur.Channel) {
	o.log.Debug("Channel created", "channel", channel.ID, "name", channel.Name)
}

func (o *ServerObserver) ChannelRemoved(_ context.Context, channel murmur.Channel) {
	o.log.Debug("Channel removed", "channel", channel.ID, "name", channel.Name)
}

func (o *ServerObserver) ChannelStateChanged(_ context.Context, channel murmur.Channel) {
	o.log.Debug("Channel state changed", "channel", channel.ID, "name", channel.Name)
}
