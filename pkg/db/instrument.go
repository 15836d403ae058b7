package db

import (
	"github.com/smallbiznis/storesplit/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

const poolStatsRefreshSeconds = 15

// instrument attaches query tracing and pool statistics to conn. Pool stats
// land on the default prometheus registry served at /metrics.
func instrument(conn *gorm.DB, cfg config.Config) error {
	if cfg.OtelEnabled {
		if err := conn.Use(otelgorm.NewPlugin(
			otelgorm.WithDBName(cfg.DBName),
			otelgorm.WithoutQueryVariables(),
		)); err != nil {
			return err
		}
	}

	return conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          cfg.DBName,
		RefreshInterval: poolStatsRefreshSeconds,
		Labels: map[string]string{
			"service": cfg.AppName,
		},
	}))
}
