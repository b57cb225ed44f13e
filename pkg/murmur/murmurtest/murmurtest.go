// Package murmurtest provides in-memory host fakes for tests.
package murmurtest

import (
	"context"
	"sync"
	"time"

	"sybot/pkg/murmur"
)

// ChannelSend records one SendMessageChannel call.
type ChannelSend struct {
	Channel int
	Tree    bool
	Text    string
}

// UserSend records one SendMessage call.
type UserSend struct {
	Session int
	Text    string
}

// Server is a scriptable murmur.Server.
type Server struct {
	id int

	mu           sync.Mutex
	running      bool
	users        map[int]murmur.User
	conf         map[string]string
	textures     map[int][]byte
	uptime       time.Duration
	callbacks    []murmur.ServerCallback
	channelSends []ChannelSend
	userSends    []UserSend

	// SendErr, when set, fails every send.
	SendErr error
	// AddCallbackErr, when set, fails AddCallback.
	AddCallbackErr error
}

// NewServer creates a running fake server.
func NewServer(id int) *Server {
	return &Server{
		id:       id,
		running:  true,
		users:    make(map[int]murmur.User),
		conf:     make(map[string]string),
		textures: make(map[int][]byte),
	}
}

func (s *Server) ID() int { return s.id }

func (s *Server) IsRunning(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, nil
}

// SetRunning flips the running flag.
func (s *Server) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

func (s *Server) AddCallback(_ context.Context, cb murmur.ServerCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AddCallbackErr != nil {
		return s.AddCallbackErr
	}
	s.callbacks = append(s.callbacks, cb)
	return nil
}

// Callbacks returns every callback added so far.
func (s *Server) Callbacks() []murmur.ServerCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]murmur.ServerCallback(nil), s.callbacks...)
}

// EmitText delivers a text message to every registered callback, like the host would.
func (s *Server) EmitText(ctx context.Context, sender *murmur.User, msg murmur.TextMessage) {
	for _, cb := range s.Callbacks() {
		cb.UserTextMessage(ctx, sender, msg)
	}
}

// AddUser registers a connected user.
func (s *Server) AddUser(user murmur.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Session] = user
}

func (s *Server) Users(context.Context) (map[int]murmur.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, murmur.NewError(murmur.ErrorServerNotRunning, "")
	}
	users := make(map[int]murmur.User, len(s.users))
	for session, user := range s.users {
		users[session] = user
	}
	return users, nil
}

func (s *Server) SendMessage(_ context.Context, session int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.userSends = append(s.userSends, UserSend{Session: session, Text: text})
	return nil
}

func (s *Server) SendMessageChannel(_ context.Context, channel int, tree bool, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.channelSends = append(s.channelSends, ChannelSend{Channel: channel, Tree: tree, Text: text})
	return nil
}

// ChannelSends returns the recorded channel sends.
func (s *Server) ChannelSends() []ChannelSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChannelSend(nil), s.channelSends...)
}

// UserSends returns the recorded direct messages.
func (s *Server) UserSends() []UserSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UserSend(nil), s.userSends...)
}

// SetConf sets a configuration value.
func (s *Server) SetConf(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conf[key] = value
}

func (s *Server) Conf(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conf[key], nil
}

// SetUptime sets the reported uptime.
func (s *Server) SetUptime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uptime = d
}

func (s *Server) Uptime(context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0, murmur.NewError(murmur.ErrorServerNotRunning, "")
	}
	return s.uptime, nil
}

// SetTexture stores an avatar for a registered user id.
func (s *Server) SetTexture(userID int, texture []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textures[userID] = texture
}

func (s *Server) Texture(_ context.Context, userID int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textures[userID], nil
}

// Meta is a scriptable murmur.Meta over a fixed set of fake servers.
type Meta struct {
	mu        sync.Mutex
	servers   []*Server
	callbacks []murmur.MetaCallback

	// ListErr, when set, fails BootedServers and AllServers.
	ListErr error
}

// NewMeta creates a meta service that owns servers.
func NewMeta(servers ...*Server) *Meta {
	return &Meta{servers: servers}
}

// AddServer appends a server to the configured set.
func (m *Meta) AddServer(server *Server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, server)
}

func (m *Meta) BootedServers(ctx context.Context) ([]murmur.Server, error) {
	all, err := m.AllServers(ctx)
	if err != nil {
		return nil, err
	}

	booted := make([]murmur.Server, 0, len(all))
	for _, server := range all {
		if running, _ := server.IsRunning(ctx); running {
			booted = append(booted, server)
		}
	}
	return booted, nil
}

func (m *Meta) AllServers(context.Context) ([]murmur.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	servers := make([]murmur.Server, 0, len(m.servers))
	for _, server := range m.servers {
		servers = append(servers, server)
	}
	return servers, nil
}

func (m *Meta) AddCallback(_ context.Context, cb murmur.MetaCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
	return nil
}

// Callbacks returns the registered lifecycle observers.
func (m *Meta) Callbacks() []murmur.MetaCallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]murmur.MetaCallback(nil), m.callbacks...)
}

// Start marks server running and notifies observers.
func (m *Meta) Start(ctx context.Context, server *Server) {
	server.SetRunning(true)
	for _, cb := range m.Callbacks() {
		cb.Started(ctx, server)
	}
}

// Stop marks server stopped and notifies observers.
func (m *Meta) Stop(ctx context.Context, server *Server) {
	server.SetRunning(false)
	for _, cb := range m.Callbacks() {
		cb.Stopped(ctx, server)
	}
}
