// Package bridge keeps per-server event observers in step with the servers the host
// is running and feeds their text events into the command router.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"sybot/pkg/murmur"
)

// ErrObserverRegistered is returned when a second lifecycle observer is registered.
var ErrObserverRegistered = errors.New("lifecycle observer already registered")

// Session is the process-wide view of the host's meta service.
type Session struct {
	meta murmur.Meta
	log  *slog.Logger

	registered atomic.Bool
}

func NewSession(meta murmur.Meta, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		meta: meta,
		log:  log.With("component", "bridge.session"),
	}
}

// RunningServers returns the servers running at call time.
func (s *Session) RunningServers(ctx context.Context) ([]murmur.Server, error) {
	servers, err := s.meta.BootedServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running servers: %w", err)
	}
	return servers, nil
}

// AllServers returns every configured server, running or not.
func (s *Session) AllServers(ctx context.Context) ([]murmur.Server, error) {
	servers, err := s.meta.AllServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return servers, nil
}

// RegisterLifecycleObserver subscribes observer to server start and stop
// notifications. Only one observer may ever be registered.
func (s *Session) RegisterLifecycleObserver(ctx context.Context, observer murmur.MetaCallback) error {
	if !s.registered.CompareAndSwap(false, true) {
		return ErrObserverRegistered
	}

	if err := s.meta.AddCallback(ctx, observer); err != nil {
		s.registered.Store(false)
		return fmt.Errorf("register lifecycle observer: %w", err)
	}

	s.log.Debug("Lifecycle observer registered")
	return nil
}
