package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sybot/pkg/murmur"
)

const (
	defaultRequestTimeout = 10 * time.Second
	writeTimeout          = 5 * time.Second
	maxMessageSize        = 64 << 20
	callbackQueueSize     = 256

	// metaQueue is the delivery queue key for server start/stop notifications.
	metaQueue = -1
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("remote client closed")

// Config describes how to reach the host's meta endpoint.
type Config struct {
	URL            string
	Secret         string
	RequestTimeout time.Duration
	Dialer         *websocket.Dialer
}

// Client is the single process-wide connection to the host's meta service.
//
// Callback pushes are delivered on one goroutine per server, so events of one server
// keep their order while different servers proceed concurrently.
type Client struct {
	secret  string
	timeout time.Duration
	conn    *websocket.Conn
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	seq atomic.Uint64
	wmu sync.Mutex

	mu              sync.Mutex
	pending         map[uint64]chan frame
	metaCallbacks   map[string]murmur.MetaCallback
	serverCallbacks map[string]serverCallback
	queues          map[int]chan frame
	servers         map[int]*server

	done     chan struct{}
	failOnce sync.Once
	err      error
	wg       sync.WaitGroup
}

// Dial connects and authenticates against the meta endpoint. Any failure here is fatal
// for the caller: there is no retry.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("meta endpoint url is required")
	}
	if log == nil {
		log = slog.Default()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, murmur.NewError(murmur.ErrorConnection, err.Error())
	}
	conn.SetReadLimit(maxMessageSize)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		secret:          cfg.Secret,
		timeout:         timeout,
		conn:            conn,
		log:             log.With("component", "murmur.remote"),
		ctx:             clientCtx,
		cancel:          cancel,
		pending:         make(map[uint64]chan frame),
		metaCallbacks:   make(map[string]murmur.MetaCallback),
		serverCallbacks: make(map[string]serverCallback),
		queues:          make(map[int]chan frame),
		servers:         make(map[int]*server),
		done:            make(chan struct{}),
	}

	go c.readLoop()

	version, err := c.Version(ctx)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("verify meta endpoint: %w", err)
	}

	c.log.Info("Connected to meta service", "url", cfg.URL, "version", version.Text)
	return c, nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, if it has.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close tears down the connection and waits for callback delivery to stop.
func (c *Client) Close() error {
	c.fail(ErrClosed)

	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	c.wmu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// Version returns the host version. It doubles as an authentication check.
func (c *Client) Version(ctx context.Context) (Version, error) {
	var version Version
	err := c.call(ctx, nil, methodGetVersion, nil, &version)
	return version, err
}

func (c *Client) BootedServers(ctx context.Context) ([]murmur.Server, error) {
	return c.listServers(ctx, methodGetBootedServers)
}

func (c *Client) AllServers(ctx context.Context) ([]murmur.Server, error) {
	return c.listServers(ctx, methodGetAllServers)
}

func (c *Client) listServers(ctx context.Context, method string) ([]murmur.Server, error) {
	var ids []int
	if err := c.call(ctx, nil, method, nil, &ids); err != nil {
		return nil, err
	}

	servers := make([]murmur.Server, 0, len(ids))
	for _, id := range ids {
		servers = append(servers, c.server(id))
	}
	return servers, nil
}

func (c *Client) AddCallback(ctx context.Context, cb murmur.MetaCallback) error {
	id := uuid.NewString()

	c.mu.Lock()
	c.metaCallbacks[id] = cb
	c.mu.Unlock()

	if err := c.call(ctx, nil, methodAddCallback, addCallbackParams{Callback: id}, nil); err != nil {
		c.mu.Lock()
		delete(c.metaCallbacks, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// server returns the cached handle for id so handle identity stays stable.
func (c *Client) server(id int) *server {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.servers[id]
	if !ok {
		s = &server{client: c, id: id}
		c.servers[id] = s
	}
	return s
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, serverID *int, method string, params any, out any) error {
	select {
	case <-c.done:
		return murmur.NewError(murmur.ErrorConnection, c.err.Error())
	default:
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.seq.Add(1)
	data, err := json.Marshal(request{
		ID:     id,
		Ctx:    map[string]string{"secret": c.secret},
		Server: serverID,
		Method: method,
		Params: params,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	respCh := make(chan frame, 1)
	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	werr := c.conn.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()
	if werr != nil {
		return murmur.NewError(murmur.ErrorConnection, werr.Error())
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error.toError())
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return murmur.NewError(murmur.ErrorConnection, c.err.Error())
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("connection lost: %w", err))
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("Dropping malformed frame", "error", err)
			continue
		}

		if f.Callback != "" {
			c.enqueue(f)
			continue
		}

		c.mu.Lock()
		respCh, ok := c.pending[f.ID]
		c.mu.Unlock()
		if !ok {
			c.log.Debug("Dropping response without pending call", "id", f.ID)
			continue
		}
		select {
		case respCh <- f:
		default:
		}
	}
}

// fail marks the connection as finished; only the first reason is kept.
func (c *Client) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		close(c.done)
		c.cancel()
	})
}

// enqueue hands a callback push to the delivery goroutine of its server. A full queue
// drops the notification rather than stalling responses behind it.
func (c *Client) enqueue(f frame) {
	key := f.Server
	if f.Event == eventStarted || f.Event == eventStopped {
		key = metaQueue
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	queue, ok := c.queues[key]
	if !ok {
		queue = make(chan frame, callbackQueueSize)
		c.queues[key] = queue
		c.wg.Add(1)
		go c.deliverLoop(queue)
	}
	c.mu.Unlock()

	select {
	case queue <- f:
	default:
		c.log.Warn("Dropping callback, delivery queue full", "event", f.Event, "server_id", f.Server)
	}
}

func (c *Client) deliverLoop(queue <-chan frame) {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case f := <-queue:
			c.deliver(f)
		}
	}
}

func (c *Client) deliver(f frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Callback panicked", "event", f.Event, "server_id", f.Server, "panic", r)
		}
	}()

	c.mu.Lock()
	metaCB, isMeta := c.metaCallbacks[f.Callback]
	serverCB, isServer := c.serverCallbacks[f.Callback]
	c.mu.Unlock()

	switch {
	case isMeta:
		c.deliverMeta(metaCB, f)
	case isServer:
		c.deliverServer(serverCB.cb, f)
	default:
		c.log.Debug("Dropping callback for unknown identity", "callback", f.Callback, "event", f.Event)
	}
}

func (c *Client) deliverMeta(cb murmur.MetaCallback, f frame) {
	srv := c.server(f.Server)

	switch f.Event {
	case eventStarted:
		cb.Started(c.ctx, srv)
	case eventStopped:
		c.forgetServerCallbacks(f.Server)
		cb.Stopped(c.ctx, srv)
	default:
		c.log.Debug("Ignoring unknown meta event", "event", f.Event)
	}
}

// forgetServerCallbacks drops the callbacks of a stopped server. The host discards
// them on stop, so a restart registers fresh ones.
func (c *Client) forgetServerCallbacks(serverID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.serverCallbacks {
		if entry.server == serverID {
			delete(c.serverCallbacks, id)
		}
	}
}

func (c *Client) deliverServer(cb murmur.ServerCallback, f frame) {
	switch f.Event {
	case eventUserConnected, eventUserDisconnected, eventUserStateChanged:
		if f.User == nil {
			c.log.Debug("Dropping user event without user", "event", f.Event)
			return
		}
		switch f.Event {
		case eventUserConnected:
			cb.UserConnected(c.ctx, *f.User)
		case eventUserDisconnected:
			cb.UserDisconnected(c.ctx, *f.User)
		default:
			cb.UserStateChanged(c.ctx, *f.User)
		}
	case eventUserTextMessage:
		if f.Message == nil {
			c.log.Debug("Dropping text event without message")
			return
		}
		cb.UserTextMessage(c.ctx, f.User, *f.Message)
	case eventChannelCreated, eventChannelRemoved, eventChannelStateChanged:
		if f.Channel == nil {
			c.log.Debug("Dropping channel event without channel", "event", f.Event)
			return
		}
		switch f.Event {
		case eventChannelCreated:
			cb.ChannelCreated(c.ctx, *f.Channel)
		case eventChannelRemoved:
			cb.ChannelRemoved(c.ctx, *f.Channel)
		default:
			cb.ChannelStateChanged(c.ctx, *f.Channel)
		}
	default:
		c.log.Debug("Ignoring unknown server event", "event", f.Event)
	}
}
