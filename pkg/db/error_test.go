package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgconn", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgconn_other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: invitations.token"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsUndefinedFunctionErr(t *testing.T) {
	if !IsUndefinedFunctionErr(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "42883"})) {
		t.Fatalf("expected undefined function to be detected")
	}
	if IsUndefinedFunctionErr(errors.New("no such function: generate_invitation_token")) {
		t.Fatalf("expected plain errors to be ignored")
	}
}

func TestNewTestIsIsolated(t *testing.T) {
	type row struct {
		ID int64 `gorm:"primaryKey"`
	}
	a := NewTest(t)
	b := NewTest(t)
	if err := a.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := a.Create(&row{ID: 1}).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if b.Migrator().HasTable(&row{}) {
		t.Fatalf("expected second database to be empty")
	}
}
