package db

import (
	"fmt"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ChangeChannel is the Postgres NOTIFY channel the ledger triggers publish on
const ChangeChannel = "ledger_changes"

var DB *gorm.DB

// InitDB connects to Postgres, migrates the ledger schema and installs change triggers
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.Driver != "" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logrus.WithField("driver", "postgres").Info("Connecting to database")

	gdb, err := Open(postgres.Open(cfg.DSN))
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logrus.Info("✅ Database connected successfully")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	if err := installChangeTriggers(gdb); err != nil {
		// The NATS and Redis transports do not depend on the triggers.
		logrus.WithError(err).Warn("⚠️ Failed to install ledger change triggers, postgres feed transport will be silent")
	}

	DB = gdb
	return gdb, nil
}

// Open opens a gorm connection with the shared settings
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return gdb, nil
}

// Migrate runs AutoMigrate for the ledger models
func Migrate(gdb *gorm.DB) error {
	logrus.Info("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := gdb.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	logrus.Info("✅ Database schema migrated successfully")
	return nil
}

// installChangeTriggers makes every ledger row change emit a NOTIFY on
// ChangeChannel carrying the collection, user address and operation.
func installChangeTriggers(gdb *gorm.DB) error {
	fn := fmt.Sprintf(`
CREATE OR REPLACE FUNCTION ledger_notify_change() RETURNS trigger AS $$
DECLARE
	row_user TEXT;
BEGIN
	IF TG_OP = 'DELETE' THEN
		row_user := OLD.user_address;
	ELSE
		row_user := NEW.user_address;
	END IF;
	PERFORM pg_notify('%s', json_build_object(
		'collection', TG_TABLE_NAME,
		'user_address', row_user,
		'op', lower(TG_OP)
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;`, ChangeChannel)

	if err := gdb.Exec(fn).Error; err != nil {
		return fmt.Errorf("create notify function: %w", err)
	}

	for _, table := range []string{models.CollectionTransactions, models.CollectionRecipients} {
		trigger := fmt.Sprintf("%s_notify_change", table)
		if err := gdb.Exec(fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigger, table)).Error; err != nil {
			return fmt.Errorf("drop trigger %s: %w", trigger, err)
		}
		create := fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
FOR EACH ROW EXECUTE FUNCTION ledger_notify_change()`, trigger, table)
		if err := gdb.Exec(create).Error; err != nil {
			return fmt.Errorf("create trigger %s: %w", trigger, err)
		}
		logrus.WithField("table", table).Debug("ledger change trigger installed")
	}
	return nil
}
