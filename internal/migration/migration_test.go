package migration

import (
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	dbpkg "github.com/smallbiznis/insightboard/pkg/db"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestAutoMigrateIsRepeatable(t *testing.T) {
	conn := dbpkg.NewTest(t)
	if err := Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"organizations", "organization_members", "subscriptions", "invitations", "activity_logs", "profiles"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestActiveSubscriptionIndexRejectsSecondActiveRow(t *testing.T) {
	conn := dbpkg.NewTest(t)
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	insert := `INSERT INTO subscriptions (id, user_id, organization_id, plan, status, current_period_start, current_period_end, created_at, updated_at)
		VALUES (?, 1, 10, 'free', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	if err := conn.Exec(insert, 1, "active").Error; err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := conn.Exec(insert, 2, "canceled").Error; err != nil {
		t.Fatalf("canceled rows must not collide: %v", err)
	}
	err := conn.Exec(insert, 3, "active").Error
	if !dbpkg.IsDuplicateKeyErr(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestActiveSubscriptionIndexSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insightboard.db")
	open := func() *gorm.DB {
		conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
			TranslateError: true,
		})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			t.Fatalf("db handle: %v", err)
		}
		t.Cleanup(func() { _ = sqlDB.Close() })
		return conn
	}

	if err := Migrate(open()); err != nil {
		t.Fatalf("first boot: %v", err)
	}
	conn := open()
	if err := Migrate(conn); err != nil {
		t.Fatalf("second boot: %v", err)
	}

	if !conn.Migrator().HasIndex("subscriptions", activeSubscriptionIndex) {
		t.Fatalf("expected %s after restart", activeSubscriptionIndex)
	}
	insert := `INSERT INTO subscriptions (id, user_id, organization_id, plan, status, current_period_start, current_period_end, created_at, updated_at)
		VALUES (?, 1, 10, 'pro', 'active', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	if err := conn.Exec(insert, 1).Error; err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := conn.Exec(insert, 2).Error; !dbpkg.IsDuplicateKeyErr(err) {
		t.Fatalf("expected unique violation after restart, got %v", err)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("unbalanced migrations: %d up, %d down", ups, downs)
	}
}
