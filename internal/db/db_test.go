package db

import (
	"path/filepath"
	"testing"

	"github.com/zulandar/pressbox/internal/config"
	"github.com/zulandar/pressbox/internal/models"
)

func TestConnect_SqliteAndMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{
		Dialect: "sqlite",
		Path:    filepath.Join(t.TempDir(), "test.db"),
	}
	gdb, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	report := models.Report{
		SessionID: "sess-1",
		FixtureID: "12345",
		Title:     "Arsenal 2-1 Chelsea",
		Status:    "completed",
	}
	if err := gdb.Create(&report).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}

	var got models.Report
	if err := gdb.Where("session_id = ?", "sess-1").First(&got).Error; err != nil {
		t.Fatalf("First: %v", err)
	}
	if got.FixtureID != "12345" {
		t.Errorf("FixtureID = %q, want %q", got.FixtureID, "12345")
	}
	if got.Status != "completed" {
		t.Errorf("Status = %q, want %q", got.Status, "completed")
	}
}

func TestConnect_UnsupportedDialect(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Dialect: "postgres"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		User:     "press",
		Host:     "10.0.0.5",
		Port:     3307,
		Database: "pressbox_prod",
	}
	want := "press@tcp(10.0.0.5:3307)/pressbox_prod?parseTime=true"
	if got := DSN(cfg); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
