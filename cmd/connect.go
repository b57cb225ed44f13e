package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"sybot/pkg/config"
	"sybot/pkg/logger"
	"sybot/pkg/murmur/remote"
)

// setup loads config and installs the process logger. The returned func flushes the
// log file, if any.
func setup(component string) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, closeLog, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, slog.Default().With("component", component), func() { _ = closeLog() }, nil
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*remote.Client, error) {
	client, err := remote.Dial(ctx, remote.Config{
		URL:            cfg.Murmur.Endpoint(),
		Secret:         cfg.Murmur.Secret,
		RequestTimeout: cfg.Murmur.RequestTimeout(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Murmur.Endpoint(), err)
	}
	return client, nil
}
