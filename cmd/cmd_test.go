package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sybot/pkg/config"
	"sybot/pkg/murmur"
	"sybot/pkg/murmur/murmurtest"
)

func noNotice() (string, error) { return "", nil }

func TestResolveAnnouncement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notice.html")
	if err := os.WriteFile(path, []byte(" <b>from file</b>\n"), 0o600); err != nil {
		t.Fatalf("write notice: %v", err)
	}

	tests := []struct {
		name   string
		args   []string
		file   string
		notice func() (string, error)
		want   string
	}{
		{name: "file wins", args: []string{"ignored"}, file: path, notice: noNotice, want: "<b>from file</b>"},
		{name: "args joined", args: []string{"we", "are", "live"}, notice: noNotice, want: "we are live"},
		{name: "configured notice", notice: func() (string, error) { return "<i>live</i>", nil }, want: "<i>live</i>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveAnnouncement(tt.args, tt.file, tt.notice)
			if err != nil {
				t.Fatalf("resolveAnnouncement error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolveAnnouncement = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveAnnouncementErrors(t *testing.T) {
	if _, err := resolveAnnouncement(nil, "", noNotice); err == nil {
		t.Fatal("expected error with nothing to announce")
	}

	if _, err := resolveAnnouncement(nil, filepath.Join(t.TempDir(), "missing.html"), noNotice); err == nil {
		t.Fatal("expected error for missing file")
	}

	boom := errors.New("boom")
	if _, err := resolveAnnouncement(nil, "", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestDescribeServer(t *testing.T) {
	running := murmurtest.NewServer(1)
	running.SetConf("registername", "Sybolt")
	running.SetConf("host", "sybolt.com")
	running.SetConf("port", "64738")
	running.AddUser(murmur.User{Session: 1, Name: "Mock"})

	stopped := murmurtest.NewServer(2)
	stopped.SetRunning(false)

	row := describeServer(context.Background(), running)
	if row.Name != "Sybolt" || row.Address != "sybolt.com:64738" || !row.Running || row.Users != 1 {
		t.Fatalf("describeServer(running) = %+v", row)
	}

	row = describeServer(context.Background(), stopped)
	if row.Running || row.Users != 0 || row.Address != "" {
		t.Fatalf("describeServer(stopped) = %+v", row)
	}
}

func TestPrintServers(t *testing.T) {
	var out bytes.Buffer
	printServers(&out, []serverRow{
		{ID: 1, Name: "Sybolt", Address: "sybolt.com:64738", Running: true, Users: 3},
		{ID: 2},
	})

	text := out.String()
	for _, want := range []string{"2 servers", "#1", "Sybolt", "running", "3 users", "#2", "(unnamed)", "stopped"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	printServers(&out, nil)
	if !strings.Contains(out.String(), "no servers configured") {
		t.Fatalf("unexpected empty output: %q", out.String())
	}
}

func TestAPIAddress(t *testing.T) {
	if got := apiAddress(true, "0.0.0.0:5006"); got != "disabled" {
		t.Fatalf("apiAddress(disabled) = %q", got)
	}
	if got := apiAddress(false, "0.0.0.0:5006"); got != "0.0.0.0:5006" {
		t.Fatalf("apiAddress = %q", got)
	}
}

type fakeConn struct {
	*murmurtest.Meta

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func newFakeConn(servers ...*murmurtest.Server) *fakeConn {
	return &fakeConn{Meta: murmurtest.NewMeta(servers...), done: make(chan struct{})}
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }
func (c *fakeConn) Err() error            { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func dialTo(conn *fakeConn) dialFunc {
	return func(context.Context, *config.Config, *slog.Logger) (metaConn, error) {
		return conn, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunServeFailsWhenServiceCannotBeBuilt(t *testing.T) {
	conn := newFakeConn()
	cfg := &config.Config{API: config.APIConfig{LiveNoticeFile: filepath.Join(t.TempDir(), "missing.html")}}

	err := runServe(context.Background(), cfg, quietLogger(), dialTo(conn))
	if err == nil {
		t.Fatal("expected error when the service cannot be built")
	}
	if !strings.Contains(err.Error(), "initialize service") {
		t.Fatalf("error = %v, want initialize service failure", err)
	}
	if !conn.isClosed() {
		t.Fatal("expected connection to be closed")
	}
}

func TestRunServeFailsWhenDialFails(t *testing.T) {
	boom := errors.New("refused")
	dial := func(context.Context, *config.Config, *slog.Logger) (metaConn, error) { return nil, boom }

	err := runServe(context.Background(), &config.Config{}, quietLogger(), dial)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

func TestRunServeStopsCleanlyOnCancel(t *testing.T) {
	conn := newFakeConn(murmurtest.NewServer(1))
	cfg := &config.Config{API: config.APIConfig{Disabled: true}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(ctx, cfg, quietLogger(), dialTo(conn))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServe error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runServe did not stop after cancel")
	}
	if !conn.isClosed() {
		t.Fatal("expected connection to be closed")
	}
}
