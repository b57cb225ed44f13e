package bridge

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"sybot/pkg/bus"
	"sybot/pkg/command"
	"sybot/pkg/murmur"
)

// Router dispatches a text message to at most one command handler.
type Router interface {
	Dispatch(ctx context.Context, msg *command.Message) bool
}

// Lifecycle attaches a ServerObserver to every running server and detaches it when
// the server stops. It implements murmur.MetaCallback.
type Lifecycle struct {
	router Router
	events bus.Publisher
	log    *slog.Logger

	mu        sync.Mutex
	observers map[int]*ServerObserver
}

// NewLifecycle creates a lifecycle observer with no attached servers. events may be nil.
func NewLifecycle(router Router, events bus.Publisher, log *slog.Logger) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}

	return &Lifecycle{
		router:    router,
		events:    events,
		log:       log.With("component", "bridge.lifecycle"),
		observers: make(map[int]*ServerObserver),
	}
}

// Attach registers the lifecycle with session and then attaches to every server that
// is already running. Registering first means a server booting in between is seen
// twice at worst, which Started ignores.
func (l *Lifecycle) Attach(ctx context.Context, session *Session) error {
	if err := session.RegisterLifecycleObserver(ctx, l); err != nil {
		return err
	}

	servers, err := session.RunningServers(ctx)
	if err != nil {
		return err
	}

	l.Sync(ctx, servers)
	return nil
}

// Sync treats every server in servers as freshly started.
func (l *Lifecycle) Sync(ctx context.Context, servers []murmur.Server) {
	for _, server := range servers {
		l.Started(ctx, server)
	}
}

// Started attaches an observer to server unless one is already attached. A failed
// attach is logged and leaves no association behind.
func (l *Lifecycle) Started(ctx context.Context, server murmur.Server) {
	id := server.ID()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.observers[id]; ok {
		l.log.Debug("Server already attached", "server_id", id)
		return
	}

	observer := newServerObserver(server, l.router, l.log)
	if err := server.AddCallback(ctx, observer); err != nil {
		l.log.Error("Attach to server failed", "server_id", id, "error", err)
		return
	}

	l.observers[id] = observer
	l.log.Info("Attached to server", "server_id", id)
	l.publish(ctx, bus.Event{Type: bus.EventServerAttached, ServerID: id})
}

// Stopped drops the observer for server. The host has already discarded the server's
// callbacks, so nothing is sent back.
func (l *Lifecycle) Stopped(ctx context.Context, server murmur.Server) {
	id := server.ID()

	l.mu.Lock()
	defer l.mu.Unlock()

	observer, ok := l.observers[id]
	if !ok {
		l.log.Debug("Stopped server was not attached", "server_id", id)
		return
	}

	observer.detach()
	delete(l.observers, id)
	l.log.Info("Detached from server", "server_id", id)
	l.publish(ctx, bus.Event{Type: bus.EventServerDetached, ServerID: id})
}

// Attached reports whether an observer is attached to the server with id.
func (l *Lifecycle) Attached(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.observers[id]
	return ok
}

// ServerIDs returns the ids of attached servers in ascending order.
func (l *Lifecycle) ServerIDs() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of attached servers.
func (l *Lifecycle) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.observers)
}

func (l *Lifecycle) publish(ctx context.Context, event bus.Event) {
	if l.events == nil {
		return
	}
	l.events.PublishEvent(ctx, event)
}
