package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	invitationdomain "github.com/smallbiznis/insightboard/internal/invitation/domain"
	orgdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	subscriptiondomain "github.com/smallbiznis/insightboard/internal/subscription/domain"
	"gorm.io/gorm"
)

// Migrate brings the schema up to date. Postgres runs the embedded SQL
// migrations; other dialects are development targets and use AutoMigrate.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the domain models. sqlite also gets
// the partial unique index on active subscriptions; mysql has no partial
// indexes and relies on the activation transaction alone.
//
// The sqlite index is dropped before AutoMigrate runs because some drivers
// cannot parse its WHERE clause when gorm inspects an existing table.
func AutoMigrate(conn *gorm.DB) error {
	isSQLite := conn.Dialector.Name() == "sqlite"
	if isSQLite {
		if err := conn.Exec(`DROP INDEX IF EXISTS ` + activeSubscriptionIndex).Error; err != nil {
			return fmt.Errorf("drop active subscription index: %w", err)
		}
	}

	if err := conn.AutoMigrate(
		&orgdomain.Profile{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationMember{},
		&subscriptiondomain.Subscription{},
		&invitationdomain.Invitation{},
		&auditdomain.ActivityLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if isSQLite {
		err := conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeSubscriptionIndex + `
			ON subscriptions (organization_id) WHERE status = 'active'`).Error
		if err != nil {
			return fmt.Errorf("create active subscription index: %w", err)
		}
	}
	return nil
}

const activeSubscriptionIndex = "ux_subscriptions_org_active"
