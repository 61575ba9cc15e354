package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/models"
	cfgpkg "github.com/fatflowers/dropship/pkg/config"
	gormzap "github.com/fatflowers/dropship/pkg/gormlog"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

func dialector(cfg cfgpkg.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	d, err := dialector(cfg.Database)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger:  gormzap.ForEnv(l, cfg.Env == cfgpkg.EnvProd),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	if cfg.Database.MaxOpenConns > 0 {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
	}
	l.Infow("connected to database via DSN", "driver", db.Dialector.Name())
	return db, nil
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(registerDBClose),
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.PendingCheckout{},
		&models.Order{},
		&models.PaymentReceipt{},
		&models.MobilePayment{},
		&models.OrderLog{},
		&models.PaymentNotificationLog{},
	); err != nil {
		return err
	}
	return ensureProviderReferenceIndex(db)
}

// ensureProviderReferenceIndex makes mobile_payments.provider_reference
// unique only when present. MySQL has no partial indexes; there a plain
// unique index works because empty references are stored as NULL.
func ensureProviderReferenceIndex(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case DriverMySQL:
		if db.Migrator().HasIndex(&models.MobilePayment{}, "uniq_mobile_payments_provider_reference") {
			return nil
		}
		return db.Exec("CREATE UNIQUE INDEX uniq_mobile_payments_provider_reference ON mobile_payments (provider_reference)").Error
	default:
		return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS uniq_mobile_payments_provider_reference " +
			"ON mobile_payments (provider_reference) " +
			"WHERE provider_reference IS NOT NULL AND provider_reference <> ''").Error
	}
}

// AutoMigrate runs GORM migrations on startup
func AutoMigrate(l *zap.SugaredLogger, db *gorm.DB) error {
	if err := Migrate(db); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	l.Infow("automigrate completed")
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing database connection pool")
			return sqlDB.Close()
		},
	})
}
