package bunsql

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/bunsql/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun/dialect"
)

// ApplyMigrations applies the embedded migrations for the store's dialect.
func (s *Store) ApplyMigrations() error {
	var (
		driver database.Driver
		dir    string
		err    error
	)

	switch name := s.db.Dialect().Name(); name {
	case dialect.PG:
		dir = "postgres"
		driver, err = migratepostgres.WithInstance(s.db.DB, &migratepostgres.Config{})
	case dialect.MySQL:
		dir = "mysql"
		driver, err = migratemysql.WithInstance(s.db.DB, &migratemysql.Config{})
	default:
		return fmt.Errorf("bunsql: no migrations for dialect %s", name)
	}
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, dir)
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, dir, driver)
	if err != nil {
		return err
	}

	err = instance.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
