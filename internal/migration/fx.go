package migration

import (
	"github.com/aware88/fresh-crm/internal/config"
	"github.com/aware88/fresh-crm/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureDefaultsWithOrgID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureDefaults(conn)
	}),
)
