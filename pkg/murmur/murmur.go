// Package murmur describes the host-side objects the bridge talks to: the meta service that
// owns every virtual server, the per-server handles, and the callback contracts the host
// invokes when servers start/stop or users act on a server.
package murmur

import (
	"context"
	"net/netip"
	"time"
)

// Meta is the host's meta service. It knows about every configured virtual server.
type Meta interface {
	// BootedServers returns the servers that are running right now.
	BootedServers(ctx context.Context) ([]Server, error)
	// AllServers returns every configured server, running or not.
	AllServers(ctx context.Context) ([]Server, error)
	// AddCallback registers an observer for server start/stop notifications.
	AddCallback(ctx context.Context, cb MetaCallback) error
}

// Server is a handle to one virtual server. The handle is owned by the host; its ID is
// stable for the lifetime of the instance.
type Server interface {
	ID() int
	IsRunning(ctx context.Context) (bool, error)
	AddCallback(ctx context.Context, cb ServerCallback) error
	// Users returns connected users keyed by session id.
	Users(ctx context.Context) (map[int]User, error)
	SendMessage(ctx context.Context, session int, text string) error
	SendMessageChannel(ctx context.Context, channel int, tree bool, text string) error
	Conf(ctx context.Context, key string) (string, error)
	Uptime(ctx context.Context) (time.Duration, error)
	// Texture returns the stored avatar of a registered user. Empty when none is set.
	Texture(ctx context.Context, userID int) ([]byte, error)
}

// MetaCallback receives server lifecycle notifications.
//
// Started fires once the server is up, so every method needing a running server works.
// Stopped fires after the server has gone down; no such method is valid anymore.
type MetaCallback interface {
	Started(ctx context.Context, server Server)
	Stopped(ctx context.Context, server Server)
}

// ServerCallback receives the events of one server.
type ServerCallback interface {
	UserConnected(ctx context.Context, user User)
	UserDisconnected(ctx context.Context, user User)
	UserStateChanged(ctx context.Context, user User)
	// UserTextMessage delivers a chat message. sender is nil for system generated text.
	UserTextMessage(ctx context.Context, sender *User, msg TextMessage)
	ChannelCreated(ctx context.Context, channel Channel)
	ChannelRemoved(ctx context.Context, channel Channel)
	ChannelStateChanged(ctx context.Context, channel Channel)
}

// RootChannel is the id of the top channel of every server.
const RootChannel = 0

// User is the state of one connected client session.
type User struct {
	Session   int     `json:"session"`
	UserID    int     `json:"userid"`
	Name      string  `json:"name"`
	Channel   int     `json:"channel"`
	Mute      bool    `json:"mute"`
	Deaf      bool    `json:"deaf"`
	Suppress  bool    `json:"suppress"`
	SelfMute  bool    `json:"selfMute"`
	SelfDeaf  bool    `json:"selfDeaf"`
	Recording bool    `json:"recording"`
	Comment   string  `json:"comment,omitempty"`
	Address   Address `json:"address"`
}

// Registered reports whether the user has a registration (and possibly a stored texture).
func (u User) Registered() bool {
	return u.UserID >= 0
}

// Muted reports whether the user is muted by an admin or by themselves.
func (u User) Muted() bool {
	return u.Mute || u.SelfMute
}

// Deafened reports whether the user is deafened by an admin or by themselves.
func (u User) Deafened() bool {
	return u.Deaf || u.SelfDeaf
}

// Address is the 16 byte client address as the host reports it. IPv4 clients arrive
// IPv4-mapped.
type Address [16]byte

// IP returns the address as an IPv6 netip.Addr.
func (a Address) IP() netip.Addr {
	return netip.AddrFrom16(a)
}

func (a Address) String() string {
	return a.IP().String()
}

// TextMessage is a chat message together with the scope it was sent to.
type TextMessage struct {
	Sessions []int  `json:"sessions"`
	Channels []int  `json:"channels"`
	Trees    []int  `json:"trees"`
	Text     string `json:"text"`
}

// Channel is the state of one channel.
type Channel struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Parent      int    `json:"parent"`
	Links       []int  `json:"links,omitempty"`
	Description string `json:"description,omitempty"`
	Temporary   bool   `json:"temporary"`
	Position    int    `json:"position"`
}
