package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sybot/pkg/config"
	"sybot/pkg/content"
	"sybot/pkg/murmur"
	"sybot/pkg/murmur/murmurtest"
)

type testConn struct {
	*murmurtest.Meta

	once sync.Once
	done chan struct{}
	err  error
}

func newTestConn(servers ...*murmurtest.Server) *testConn {
	return &testConn{Meta: murmurtest.NewMeta(servers...), done: make(chan struct{})}
}

func (c *testConn) Done() <-chan struct{} { return c.done }

func (c *testConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *testConn) lose(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

type nopFetcher struct{}

func (nopFetcher) PageTitle(context.Context, string) (string, error)    { return content.NoTitle, nil }
func (nopFetcher) ImageDataURI(context.Context, string) (string, error) { return "", nil }
func (nopFetcher) SteamApp(context.Context, string) (*content.SteamApp, error) {
	return nil, content.ErrInvalidApp
}
func (nopFetcher) Workshop(context.Context, string) (*content.WorkshopItem, error) {
	return nil, errors.New("not found")
}

func testConfig() *config.Config {
	return &config.Config{API: config.APIConfig{Disabled: true}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func startService(t *testing.T, svc *Service) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.Eventually(t, svc.isReady, time.Second, 10*time.Millisecond)
	return cancel, errCh
}

func TestNewServiceRequiresConfigAndConn(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, newTestConn(), nil); err == nil {
		t.Fatal("expected error without config")
	}
	if _, err := NewService(testConfig(), nil, nil); err == nil {
		t.Fatal("expected error without connection")
	}
}

func TestStatusNotReadyBeforeRun(t *testing.T) {
	t.Parallel()

	svc, err := NewService(testConfig(), newTestConn(), testLogger(), WithFetcher(nopFetcher{}))
	require.NoError(t, err)

	ready, body := svc.Status()
	require.False(t, ready)
	require.Equal(t, "not_ready", body.(statusResponse).Status)
}

func TestServiceAnswersCommandsOnRunningServers(t *testing.T) {
	t.Parallel()

	server := murmurtest.NewServer(1)
	conn := newTestConn(server)

	svc, err := NewService(testConfig(), conn, testLogger(), WithFetcher(nopFetcher{}))
	require.NoError(t, err)

	cancel, errCh := startService(t, svc)
	defer cancel()

	sender := &murmur.User{Session: 4, Name: "Mock"}
	server.EmitText(context.Background(), sender, murmur.TextMessage{Channels: []int{0}, Text: "!help"})

	sends := server.UserSends()
	require.Len(t, sends, 1)
	require.Equal(t, 4, sends[0].Session)
	require.True(t, strings.HasPrefix(sends[0].Text, "Available commands:"))

	require.Eventually(t, func() bool {
		_, body := svc.Status()
		return body.(statusResponse).Counters.Dispatched == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
}

func TestServiceAttachesServersStartedLater(t *testing.T) {
	t.Parallel()

	conn := newTestConn()
	svc, err := NewService(testConfig(), conn, testLogger(), WithFetcher(nopFetcher{}))
	require.NoError(t, err)

	cancel, errCh := startService(t, svc)
	defer cancel()

	late := murmurtest.NewServer(5)
	conn.Start(context.Background(), late)

	_, body := svc.Status()
	require.Equal(t, []int{5}, body.(statusResponse).Servers)

	cancel()
	require.NoError(t, <-errCh)
}

func TestServiceStopsWhenConnectionIsLost(t *testing.T) {
	t.Parallel()

	conn := newTestConn(murmurtest.NewServer(1))
	svc, err := NewService(testConfig(), conn, testLogger(), WithFetcher(nopFetcher{}))
	require.NoError(t, err)

	_, errCh := startService(t, svc)
	conn.lose(errors.New("connection reset"))

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "meta connection lost")
		require.ErrorContains(t, err, "connection reset")
	case <-time.After(time.Second):
		t.Fatal("service did not stop after connection loss")
	}

	ready, body := svc.Status()
	require.False(t, ready)
	require.Equal(t, "connection reset", body.(statusResponse).LastError)
}

func TestServiceFailsWhenAttachFails(t *testing.T) {
	t.Parallel()

	conn := newTestConn(murmurtest.NewServer(1))
	conn.ListErr = murmur.NewError(murmur.ErrorConnection, "refused")

	svc, err := NewService(testConfig(), conn, testLogger(), WithFetcher(nopFetcher{}))
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.ErrorContains(t, err, "attach to servers")
}

func TestServiceBroadcastReachesRunningServers(t *testing.T) {
	t.Parallel()

	first := murmurtest.NewServer(1)
	second := murmurtest.NewServer(2)
	second.SetRunning(false)

	svc, err := NewService(testConfig(), newTestConn(first, second), testLogger(), WithFetcher(nopFetcher{}))
	require.NoError(t, err)

	delivered, err := svc.Broadcast(context.Background(), "<b>live</b>")
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Equal(t, []murmurtest.ChannelSend{{Channel: murmur.RootChannel, Tree: true, Text: "<b>live</b>"}}, first.ChannelSends())
}

func TestNewServiceReadsNoticeFile(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{API: config.APIConfig{LiveNoticeFile: "/nonexistent/notice.html"}}
	if _, err := NewService(cfg, newTestConn(), testLogger(), WithFetcher(nopFetcher{})); err == nil {
		t.Fatal("expected error for unreadable notice file")
	}
}
