// Package api serves read-only snapshots of the host's servers and users, plus the
// live notice broadcast.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sybot/pkg/murmur"
	"sybot/pkg/texture"
)

// ServerLister lists every configured server.
type ServerLister interface {
	AllServers(ctx context.Context) ([]murmur.Server, error)
}

// Broadcaster sends one message to every running server.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (int, error)
}

// StatusReporter reports process readiness for /readyz.
type StatusReporter interface {
	Status() (ready bool, body any)
}

// Handlers provides the HTTP handlers.
type Handlers struct {
	servers     ServerLister
	broadcaster Broadcaster
	status      StatusReporter
	notice      string
	log         *slog.Logger
}

// DataResponse wraps every successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServerInfo is one entry of GET /servers.
type ServerInfo struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Host          string `json:"host"`
	Port          string `json:"port"`
	IsRunning     bool   `json:"isRunning"`
	UptimeSeconds int64  `json:"uptime"`
	Users         int    `json:"users"`
}

// UserInfo is one entry of GET /users.
type UserInfo struct {
	Server     int    `json:"server"`
	Session    int    `json:"session"`
	Registered bool   `json:"registered"`
	Mute       bool   `json:"mute"`
	Deaf       bool   `json:"deaf"`
	Channel    int    `json:"channel"`
	Name       string `json:"name"`
	Texture    string `json:"texture"`
	Addr       string `json:"addr"`
}

// LiveResponse reports how many servers received the live notice.
type LiveResponse struct {
	Servers int `json:"servers"`
}

// Hello answers GET /.
func (h *Handlers) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, DataResponse{Data: "hello world"})
}

// Servers lists every configured server.
// GET /servers
func (h *Handlers) Servers(c *gin.Context) {
	ctx := c.Request.Context()

	servers, err := h.servers.AllServers(ctx)
	if err != nil {
		h.fail(c, "list servers", err)
		return
	}

	infos := make([]ServerInfo, 0, len(servers))
	for _, server := range servers {
		info, err := h.serverInfo(ctx, server)
		if err != nil {
			h.fail(c, "describe server "+strconv.Itoa(server.ID()), err)
			return
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, DataResponse{Data: infos})
}

func (h *Handlers) serverInfo(ctx context.Context, server murmur.Server) (ServerInfo, error) {
	info := ServerInfo{ID: server.ID()}

	var err error
	if info.Name, err = server.Conf(ctx, "registername"); err != nil {
		return info, err
	}
	if info.Host, err = server.Conf(ctx, "host"); err != nil {
		return info, err
	}
	if info.Port, err = server.Conf(ctx, "port"); err != nil {
		return info, err
	}
	if info.IsRunning, err = server.IsRunning(ctx); err != nil {
		return info, err
	}
	if !info.IsRunning {
		return info, nil
	}

	uptime, err := server.Uptime(ctx)
	if err != nil {
		return info, err
	}
	info.UptimeSeconds = int64(uptime.Seconds())

	users, err := server.Users(ctx)
	if err != nil {
		return info, err
	}
	info.Users = len(users)

	return info, nil
}

// Users lists connected users of every running server.
// GET /users
func (h *Handlers) Users(c *gin.Context) {
	ctx := c.Request.Context()

	servers, err := h.servers.AllServers(ctx)
	if err != nil {
		h.fail(c, "list servers", err)
		return
	}

	users := make([]UserInfo, 0)
	for _, server := range servers {
		running, err := server.IsRunning(ctx)
		if err != nil {
			h.fail(c, "check server "+strconv.Itoa(server.ID()), err)
			return
		}
		if !running {
			continue
		}

		connected, err := server.Users(ctx)
		if err != nil {
			h.fail(c, "list users of server "+strconv.Itoa(server.ID()), err)
			return
		}

		for _, user := range sortedUsers(connected) {
			users = append(users, UserInfo{
				Server:     server.ID(),
				Session:    user.Session,
				Registered: user.Registered(),
				Mute:       user.Muted(),
				Deaf:       user.Deafened(),
				Channel:    user.Channel,
				Name:       user.Name,
				Texture:    h.avatar(ctx, server, user),
				Addr:       user.Address.String(),
			})
		}
	}

	c.JSON(http.StatusOK, DataResponse{Data: users})
}

// avatar renders a registered user's texture. Failures leave it empty.
func (h *Handlers) avatar(ctx context.Context, server murmur.Server, user murmur.User) string {
	if !user.Registered() {
		return ""
	}

	raw, err := server.Texture(ctx, user.UserID)
	if err != nil {
		h.log.Warn("Texture lookup failed", "server_id", server.ID(), "user_id", user.UserID, "error", err)
		return ""
	}

	uri, err := texture.ToDataURI(raw)
	if err != nil {
		h.log.Warn("Texture conversion failed", "server_id", server.ID(), "user_id", user.UserID, "error", err)
		return ""
	}
	return uri
}

// Live broadcasts the live notice to every running server.
// GET|POST /live
func (h *Handlers) Live(c *gin.Context) {
	if h.notice == "" {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "live notice is not configured"})
		return
	}

	delivered, err := h.broadcaster.Broadcast(c.Request.Context(), h.notice)
	if err != nil {
		h.fail(c, "broadcast live notice", err)
		return
	}

	h.log.Info("Live notice broadcast", "servers", delivered)
	c.JSON(http.StatusOK, DataResponse{Data: LiveResponse{Servers: delivered}})
}

// Health answers liveness checks.
// GET /healthz
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready answers readiness checks.
// GET /readyz
func (h *Handlers) Ready(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ready, body := h.status.Status()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

func (h *Handlers) fail(c *gin.Context, action string, err error) {
	h.log.Error("Request failed", "action", action, "path", c.Request.URL.Path, "error", err)

	code := http.StatusInternalServerError
	switch {
	case murmur.IsConnectionError(err):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded) || murmur.CategoryFromError(err) == murmur.ErrorTimeout:
		code = http.StatusGatewayTimeout
	}
	c.JSON(code, ErrorResponse{Error: action + " failed"})
}
