package migration

import (
	"strings"

	"github.com/smallbiznis/cdrbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch strings.ToLower(cfg.DBType) {
		case "postgres", "":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("applying postgres migrations")
			return RunMigrations(sqlDB)
		default:
			log.Info("auto migrating schema", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}
	}),
)
