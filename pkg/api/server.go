package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"sybot/pkg/murmur"
)

const shutdownTimeout = 5 * time.Second

// Config wires the API to the bridge.
type Config struct {
	Addr        string
	Servers     ServerLister
	Broadcaster Broadcaster
	Status      StatusReporter
	// Notice is the HTML sent by /live.
	Notice string
}

// Server is the HTTP API server.
type Server struct {
	addr    string
	handler http.Handler
	log     *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "api")

	h := &Handlers{
		servers:     cfg.Servers,
		broadcaster: cfg.Broadcaster,
		status:      cfg.Status,
		notice:      cfg.Notice,
		log:         log,
	}

	return &Server{
		addr:    cfg.Addr,
		handler: NewRouter(h, log),
		log:     log,
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handlers, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	if h.log == nil {
		h.log = log
	}

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(log))

	router.GET("/", h.Hello)
	router.GET("/servers", h.Servers)
	router.GET("/users", h.Users)
	router.GET("/live", h.Live)
	router.POST("/live", h.Live)
	router.GET("/healthz", h.Health)
	router.GET("/readyz", h.Ready)

	return router
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("API server started", "address", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start api server: %w", err)
	}
	return nil
}

// LoggerMiddleware logs every request after it is served.
func LoggerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

func sortedUsers(users map[int]murmur.User) []murmur.User {
	sessions := make([]int, 0, len(users))
	for session := range users {
		sessions = append(sessions, session)
	}
	slices.Sort(sessions)

	out := make([]murmur.User, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, users[session])
	}
	return out
}
