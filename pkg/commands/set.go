// Package commands holds the chat commands the bot answers to.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"sybot/pkg/command"
	"sybot/pkg/content"
	"sybot/pkg/murmur"
)

const defaultLookupTimeout = 15 * time.Second

// Replier delivers replies to a scope on a server.
type Replier interface {
	SendToUser(ctx context.Context, server murmur.Server, session int, text string) error
	SendToChannels(ctx context.Context, server murmur.Server, channels []int, text string) error
}

// Fetcher looks up third-party content for link unfurling.
type Fetcher interface {
	PageTitle(ctx context.Context, url string) (string, error)
	ImageDataURI(ctx context.Context, url string) (string, error)
	SteamApp(ctx context.Context, appID string) (*content.SteamApp, error)
	Workshop(ctx context.Context, itemID string) (*content.WorkshopItem, error)
}

// Set is the bot's command set. Link unfurlers do their lookups on tracked
// goroutines so the delivering server is not held up.
type Set struct {
	router  *command.Router
	reply   Replier
	fetch   Fetcher
	log     *slog.Logger
	timeout time.Duration

	randMu sync.Mutex
	rand   *rand.Rand

	commands []*entry

	wg sync.WaitGroup
}

// entry is one command of the set. The router dedupes by entry pointer, so
// registering the set twice binds each command once.
type entry struct {
	pattern string
	usage   string
	run     command.HandlerFunc
}

func (e *entry) Handle(ctx context.Context, msg *command.Message) error {
	return e.run(ctx, msg)
}

type Option func(*Set)

// WithRandSource makes random choices deterministic.
func WithRandSource(src rand.Source) Option {
	return func(s *Set) {
		s.rand = rand.New(src)
	}
}

// WithLookupTimeout bounds each background lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Set) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSet(router *command.Router, reply Replier, fetch Fetcher, log *slog.Logger, opts ...Option) *Set {
	if log == nil {
		log = slog.Default()
	}

	s := &Set{
		router:  router,
		reply:   reply,
		fetch:   fetch,
		log:     log.With("component", "commands"),
		timeout: defaultLookupTimeout,
		rand:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Order matters: the first matching pattern wins.
	s.commands = []*entry{
		{`^(hi|hello)$`, "", s.Hello},
		{`^!h(e|a)lp`, "!help - Prints this help message", s.Help},
		{`^!pickone(?P<items>(?s:.*))`, "!pickone - Select one item from a list at random. Eg: !pickone Gfro, Phantom, Mark", s.PickOne},
		{`^!(?P<dice>\d+)d(?P<sides>\d+)`, "!#d# - Roll dice. Eg: !2d6 will roll 2 six-sided dice", s.Roll},
		{youTubePattern, "", s.YouTube},
		{`https?://(?:www\.)?veoh.com/watch/yapi-(?P<id>[^\s]+)"`, "", s.Veoh},
		{`(?P<url>https?://(?:www\.)?vimeo[^\s"]+)"`, "", s.Vimeo},
		{`https?://store.steampowered.com/app/(?P<appid>[\d]+)`, "", s.SteamStore},
		{`https?://steamcommunity.com/(sharedfiles|workshop)/filedetails/.*\?id=(?P<itemid>[\d]+).*`, "", s.SteamWorkshop},
	}
	return s
}

// Register binds every command to the router in order.
func (s *Set) Register() error {
	for _, cmd := range s.commands {
		if err := s.router.Register(cmd.pattern, cmd.usage, cmd); err != nil {
			return fmt.Errorf("register command: %w", err)
		}
	}

	s.log.Debug("Commands registered", "count", s.router.Len())
	return nil
}

// Wait blocks until every background lookup has finished.
func (s *Set) Wait() {
	s.wg.Wait()
}

// respond replies wherever msg was sent. Messages sent to no channel are answered
// directly to the sender.
func (s *Set) respond(ctx context.Context, msg *command.Message, text string) error {
	if len(msg.Channels) == 0 {
		if session, ok := msg.SenderSession(); ok {
			return s.reply.SendToUser(ctx, msg.Server, session, text)
		}
		return nil
	}
	return s.reply.SendToChannels(ctx, msg.Server, msg.Channels, text)
}

// spawn runs a lookup in the background bounded by the lookup timeout.
func (s *Set) spawn(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("Lookup panicked", "command", name, "panic", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.log.Warn("Lookup failed", "command", name, "error", err)
		}
	}()
}

func (s *Set) pick(items []string) string {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return items[s.rand.IntN(len(items))]
}

func (s *Set) intN(n int) int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.IntN(n)
}
