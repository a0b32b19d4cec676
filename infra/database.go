package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/amirasaad/microgive/infra/repository"
	"github.com/amirasaad/microgive/internal/migrations"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewDBConnection opens the ledger database. appEnv selects the gorm log level.
func NewDBConnection(
	cnf *config.DB,
	appEnv string,
) (*gorm.DB, error) {
	if cnf == nil || cnf.Url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	var logMode logger.LogLevel
	if appEnv == "development" {
		logMode = logger.Info
	} else {
		logMode = logger.Silent
	}

	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}

	var (
		connection *gorm.DB
		err        error
	)
	switch cnf.Driver {
	case DriverPostgres, "":
		connection, err = gorm.Open(postgres.Open(cnf.Url), gormCfg)
	case DriverSQLite:
		connection, err = gorm.Open(sqlite.Open(cnf.Url), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cnf.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, err
	}
	if cnf.Driver == DriverSQLite {
		// sqlite serialises writers; one connection keeps :memory: shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	}

	return connection, nil
}

// Migrate brings the schema up to date. Postgres runs the embedded SQL
// migrations; sqlite is auto-migrated from the gorm models.
func Migrate(db *gorm.DB, driver string) error {
	if driver == DriverSQLite {
		return db.AutoMigrate(repository.Models()...)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	dbDriver, err := migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// m.Close would close the shared *sql.DB.
	return nil
}
