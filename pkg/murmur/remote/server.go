package remote

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sybot/pkg/murmur"
)

// serverCallback is a registered observer and the server it belongs to.
type serverCallback struct {
	server int
	cb     murmur.ServerCallback
}

// server is the remote handle of one virtual server.
type server struct {
	client *Client
	id     int
}

func (s *server) ID() int {
	return s.id
}

func (s *server) call(ctx context.Context, method string, params any, out any) error {
	id := s.id
	return s.client.call(ctx, &id, method, params, out)
}

func (s *server) IsRunning(ctx context.Context) (bool, error) {
	var running bool
	err := s.call(ctx, methodIsRunning, nil, &running)
	return running, err
}

func (s *server) AddCallback(ctx context.Context, cb murmur.ServerCallback) error {
	id := uuid.NewString()

	c := s.client
	c.mu.Lock()
	c.serverCallbacks[id] = serverCallback{server: s.id, cb: cb}
	c.mu.Unlock()

	if err := s.call(ctx, methodAddCallback, addCallbackParams{Callback: id}, nil); err != nil {
		c.mu.Lock()
		delete(c.serverCallbacks, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (s *server) Users(ctx context.Context) (map[int]murmur.User, error) {
	users := make(map[int]murmur.User)
	if err := s.call(ctx, methodGetUsers, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *server) SendMessage(ctx context.Context, session int, text string) error {
	return s.call(ctx, methodSendMessage, sendMessageParams{Session: session, Text: text}, nil)
}

func (s *server) SendMessageChannel(ctx context.Context, channel int, tree bool, text string) error {
	return s.call(ctx, methodSendMessageChannel, sendMessageChannelParams{Channel: channel, Tree: tree, Text: text}, nil)
}

func (s *server) Conf(ctx context.Context, key string) (string, error) {
	var value string
	err := s.call(ctx, methodGetConf, getConfParams{Key: key}, &value)
	return value, err
}

func (s *server) Uptime(ctx context.Context) (time.Duration, error) {
	var seconds int64
	if err := s.call(ctx, methodGetUptime, nil, &seconds); err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

func (s *server) Texture(ctx context.Context, userID int) ([]byte, error) {
	var texture []byte
	err := s.call(ctx, methodGetTexture, getTextureParams{UserID: userID}, &texture)
	return texture, err
}
