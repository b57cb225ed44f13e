// Package command routes inbound chat text to the first registered handler whose
// pattern matches it.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"sync"

	"sybot/pkg/bus"
)

// Handler handles one matched message. Replies go through a response dispatcher;
// the returned error is only logged.
//
// Two registrations are the same handler when the handler values are equal, so
// pointer receivers give each handler its own identity.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a plain function to Handler. Functions cannot be compared, so
// every registration of a HandlerFunc is a distinct handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Binding is one registered pattern, usage, handler triple.
type Binding struct {
	Pattern *regexp.Regexp
	// Usage is the help line. Empty hides the command from help.
	Usage   string
	Handler Handler
}

// Hidden reports whether the binding is left out of help output.
func (b Binding) Hidden() bool {
	return b.Usage == ""
}

// Router is the ordered command registry. Registration order is the only tie-break.
type Router struct {
	log    *slog.Logger
	events bus.Publisher

	mu       sync.RWMutex
	bindings []Binding
}

// NewRouter creates an empty router. events may be nil.
func NewRouter(log *slog.Logger, events bus.Publisher) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		log:    log.With("component", "command.router"),
		events: events,
	}
}

// Register compiles pattern case-insensitively and appends a binding. Registering a
// handler that is already bound is a no-op and keeps the first pattern and usage.
func (r *Router) Register(pattern, usage string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("register %q: handler is required", pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.bindings {
		if sameHandler(existing.Handler, handler) {
			r.log.Debug("Handler already registered", "pattern", existing.Pattern.String())
			return nil
		}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	r.bindings = append(r.bindings, Binding{
		Pattern: re,
		Usage:   usage,
		Handler: handler,
	})
	return nil
}

// RegisterFunc registers fn as a new handler. It is never treated as a duplicate.
func (r *Router) RegisterFunc(pattern, usage string, fn func(ctx context.Context, msg *Message) error) error {
	if fn == nil {
		return fmt.Errorf("register %q: handler is required", pattern)
	}
	return r.Register(pattern, usage, HandlerFunc(fn))
}

// MustRegister is Register for startup code; it panics on an invalid pattern.
func (r *Router) MustRegister(pattern, usage string, handler Handler) {
	if err := r.Register(pattern, usage, handler); err != nil {
		panic(err)
	}
}

// MustRegisterFunc is RegisterFunc for startup code.
func (r *Router) MustRegisterFunc(pattern, usage string, fn func(ctx context.Context, msg *Message) error) {
	if err := r.RegisterFunc(pattern, usage, fn); err != nil {
		panic(err)
	}
}

// Dispatch runs the first binding whose pattern matches anywhere in msg.Text and
// reports whether one matched. Handler errors and panics are logged and end the
// dispatch.
func (r *Router) Dispatch(ctx context.Context, msg *Message) bool {
	if msg == nil {
		return false
	}

	binding, groups, ok := r.match(msg.Text)
	if !ok {
		return false
	}

	pattern := binding.Pattern.String()
	r.log.Debug("Dispatching command", "pattern", pattern, "sender", msg.SenderName())

	err := invoke(ctx, binding.Handler, msg.withGroups(groups))
	event := bus.Event{Type: bus.EventCommandDispatched, Command: pattern}
	if msg.Server != nil {
		event.ServerID = msg.Server.ID()
	}
	if err != nil {
		r.log.Error("Command handler failed", "pattern", pattern, "error", err)
		event.Type = bus.EventCommandFailed
		event.Error = err.Error()
	}
	r.publish(ctx, event)

	return true
}

// Usage returns the help lines of visible bindings in registration order.
func (r *Router) Usage() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	usage := make([]string, 0, len(r.bindings))
	for _, binding := range r.bindings {
		if !binding.Hidden() {
			usage = append(usage, binding.Usage)
		}
	}
	return usage
}

// Len returns the number of bindings.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Bindings returns a copy of the registry.
func (r *Router) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Binding(nil), r.bindings...)
}

func (r *Router) match(text string) (Binding, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, binding := range r.bindings {
		submatches := binding.Pattern.FindStringSubmatch(text)
		if submatches == nil {
			continue
		}

		groups := make(map[string]string)
		for i, name := range binding.Pattern.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			groups[name] = submatches[i]
		}
		return binding, groups, true
	}

	return Binding{}, nil, false
}

func (r *Router) publish(ctx context.Context, event bus.Event) {
	if r.events == nil {
		return
	}
	r.events.PublishEvent(ctx, event)
}

func invoke(ctx context.Context, handler Handler, msg *Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()

	return handler.Handle(ctx, msg)
}

// sameHandler reports whether a and b are the same handler. Values that cannot be
// compared, such as HandlerFunc, are never the same.
func sameHandler(a, b Handler) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}

// String renders a binding for logs and CLI listings.
func (b Binding) String() string {
	usage := b.Usage
	if b.Hidden() {
		usage = "(hidden)"
	}
	return strconv.Quote(b.Pattern.String()) + " " + usage
}
