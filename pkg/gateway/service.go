// Package gateway composes the bridge, the command set and the HTTP API into one
// long-running service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sybot/pkg/api"
	"sybot/pkg/bridge"
	"sybot/pkg/bus"
	"sybot/pkg/command"
	"sybot/pkg/commands"
	"sybot/pkg/config"
	"sybot/pkg/content"
	"sybot/pkg/murmur"
	"sybot/pkg/response"
)

const eventBuffer = 256

// Conn is a live meta connection. Done is closed when the connection is lost.
type Conn interface {
	murmur.Meta
	Done() <-chan struct{}
	Err() error
}

type Service struct {
	cfg  *config.Config
	log  *slog.Logger
	conn Conn

	events     *bus.Bus
	session    *bridge.Session
	lifecycle  *bridge.Lifecycle
	router     *command.Router
	dispatcher *response.Dispatcher
	commands   *commands.Set
	api        *api.Server

	mu        sync.RWMutex
	startedAt time.Time
	connected bool
	counters  eventCounters
	lastErr   string
}

type eventCounters struct {
	Dispatched int `json:"commands_dispatched"`
	Failed     int `json:"commands_failed"`
	Broadcasts int `json:"broadcasts"`
}

type statusResponse struct {
	Status        string        `json:"status"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Servers       []int         `json:"servers"`
	Counters      eventCounters `json:"counters"`
	LastError     string        `json:"last_error,omitempty"`
}

// Option customizes a Service.
type Option func(*options)

type options struct {
	fetcher  commands.Fetcher
	commands []commands.Option
}

// WithFetcher replaces the content client used by link unfurlers.
func WithFetcher(f commands.Fetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithCommandOptions passes options through to the command set.
func WithCommandOptions(opts ...commands.Option) Option {
	return func(o *options) {
		o.commands = append(o.commands, opts...)
	}
}

func NewService(cfg *config.Config, conn Conn, log *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if conn == nil {
		return nil, errors.New("meta connection is required")
	}
	if log == nil {
		log = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = content.New(content.Config{
			UserAgent:         cfg.Content.UserAgent,
			RequestsPerSecond: cfg.Content.RequestsPerSecond,
			Burst:             cfg.Content.Burst,
		}, log)
	}

	events := bus.New()
	session := bridge.NewSession(conn, log)
	router := command.NewRouter(log, events)
	dispatcher := response.NewDispatcher(session, events, log)

	set := commands.NewSet(router, dispatcher, o.fetcher, log,
		append([]commands.Option{commands.WithLookupTimeout(cfg.Content.LookupTimeout())}, o.commands...)...)
	if err := set.Register(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		log:        log.With("component", "gateway.service"),
		conn:       conn,
		events:     events,
		session:    session,
		lifecycle:  bridge.NewLifecycle(router, events, log),
		router:     router,
		dispatcher: dispatcher,
		commands:   set,
	}

	if !cfg.API.Disabled {
		notice, err := cfg.API.Notice()
		if err != nil {
			return nil, err
		}
		s.api = api.New(api.Config{
			Addr:        cfg.API.Addr(),
			Servers:     session,
			Broadcaster: dispatcher,
			Status:      s,
			Notice:      notice,
		}, log)
	}

	return s, nil
}

// Run attaches to every running server and serves until ctx is canceled or the meta
// connection is lost. Losing the connection is returned as an error.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	defer s.events.Close()
	defer s.commands.Wait()

	eventCh, unsubscribe := s.events.SubscribeEvents(ctx, eventBuffer)
	defer unsubscribe()
	go s.trackEvents(eventCh)

	if err := s.lifecycle.Attach(ctx, s.session); err != nil {
		s.setLastError(err)
		return fmt.Errorf("attach to servers: %w", err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.events.PublishEvent(ctx, bus.Event{Type: bus.EventConnected})
	s.log.Info("Bridge attached", "servers", s.lifecycle.ServerIDs(), "commands", s.router.Len())

	group, groupCtx := errgroup.WithContext(ctx)
	if s.api != nil {
		group.Go(func() error {
			return s.api.Run(groupCtx)
		})
	}
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-s.conn.Done():
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()

			err := s.conn.Err()
			if err == nil {
				err = errors.New("closed by host")
			}
			s.setLastError(err)
			return fmt.Errorf("meta connection lost: %w", err)
		}
	})

	return group.Wait()
}

// Broadcast sends text to every running server.
func (s *Service) Broadcast(ctx context.Context, text string) (int, error) {
	return s.dispatcher.Broadcast(ctx, text)
}

// Status implements api.StatusReporter.
func (s *Service) Status() (bool, any) {
	ready := s.isReady()
	status := "ready"
	if !ready {
		status = "not_ready"
	}
	return ready, s.currentStatus(status)
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Service) currentStatus(status string) statusResponse {
	servers := s.lifecycle.ServerIDs()

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Servers:       servers,
		Counters:      s.counters,
		LastError:     s.lastErr,
	}
}

// trackEvents folds bus events into the counters reported by /readyz.
func (s *Service) trackEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		switch event.Type {
		case bus.EventCommandDispatched:
			s.counters.Dispatched++
		case bus.EventCommandFailed:
			s.counters.Failed++
			s.lastErr = event.Error
		case bus.EventBroadcastSent:
			s.counters.Broadcasts++
		}
		s.mu.Unlock()
	}
}

func (s *Service) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}
