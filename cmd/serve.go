package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"sybot/pkg/config"
	"sybot/pkg/gateway"
	"sybot/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot and the HTTP API",
	Long:  "Connects to the Murmur host, attaches to every running server, and serves the HTTP API until interrupted or the connection is lost.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, closeLog, err := setup("cmd.serve")
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		defer closeLog()

		if settings, err := logger.Resolve(cfg.Logging); err != nil || settings.Level > slog.LevelDebug {
			gin.SetMode(gin.ReleaseMode)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runServe(runCtx, cfg, log, dialMeta); err != nil {
			log.Error("Bot stopped", "error", err)
			stop()
			closeLog()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// metaConn is a meta connection the serve command owns and closes.
type metaConn interface {
	gateway.Conn
	Close() error
}

type dialFunc func(ctx context.Context, cfg *config.Config, log *slog.Logger) (metaConn, error)

func dialMeta(ctx context.Context, cfg *config.Config, log *slog.Logger) (metaConn, error) {
	client, err := connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// runServe connects, builds the service and runs it. Every startup failure and a
// lost connection are errors; a canceled ctx is a clean stop.
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger, dial dialFunc) error {
	conn, err := dial(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to meta service: %w", err)
	}
	defer conn.Close()

	svc, err := gateway.NewService(cfg, conn, log)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}

	log.Info("Bot started", "endpoint", cfg.Murmur.Endpoint(), "api", apiAddress(cfg.API.Disabled, cfg.API.Addr()))
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func apiAddress(disabled bool, addr string) string {
	if disabled {
		return "disabled"
	}
	return addr
}
