package logger

import (
	"context"

	"github.com/smallbiznis/storesplit/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewFromConfig creates a zap logger from Config and replaces globals.
func NewFromConfig(appCfg config.Config) (*zap.Logger, error) {
	log, err := New(Options{
		Level:       appCfg.LogLevel,
		Environment: appCfg.Environment,
		Version:     appCfg.AppVersion,
		Console:     appCfg.Environment == "development",
	})
	if err != nil {
		return nil, err
	}
	SetServiceName(appCfg.AppName)
	return log, nil
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// stdout sync fails on some terminals
			_ = log.Sync()
			return nil
		},
	})
}

// Module wires the global zap logger for the application.
var Module = fx.Module("logger",
	fx.Provide(
		NewFromConfig,
	),
	fx.Invoke(registerHooks),
)
