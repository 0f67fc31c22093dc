package models

import (
	"testing"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(&config.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestOpen_PoolLimits(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 3,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if got := sqlDB.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("max open conns = %d, expected 3", got)
	}
}

func TestSeedRoles_Idempotent(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(&Role{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := db.Create(&Role{Title: "Responder", Description: "custom"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := SeedRoles(db); err != nil {
			t.Fatalf("seed #%d: %v", i+1, err)
		}
	}

	var count int64
	db.Model(&Role{}).Count(&count)
	if count != int64(len(DefaultRoles)) {
		t.Errorf("roles = %d, expected %d", count, len(DefaultRoles))
	}

	var responder Role
	db.Where("title = ?", "Responder").First(&responder)
	if responder.Description != "custom" {
		t.Errorf("existing role was overwritten: %q", responder.Description)
	}
}

func TestSchedulerLock_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"future", now.Add(time.Second), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := SchedulerLock{ExpiresAt: tt.expires}
			if got := l.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, expected %v", got, tt.want)
			}
		})
	}
}
