package db

import (
	"strings"
	"testing"

	"github.com/pactops/fieldops/internal/config"
	"github.com/pactops/fieldops/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DBConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.DBConfig{Host: "127.0.0.1", Port: 3306, User: "root", Database: "fieldops_alice"},
			want: "root@tcp(127.0.0.1:3306)/fieldops_alice?parseTime=true",
		},
		{
			name: "custom host and port",
			cfg:  config.DBConfig{Host: "10.0.0.5", Port: 3307, User: "root", Database: "fieldops_bob"},
			want: "root@tcp(10.0.0.5:3307)/fieldops_bob?parseTime=true",
		},
		{
			name: "with password",
			cfg:  config.DBConfig{Host: "db.vpc.internal", Port: 3306, User: "fieldops", Password: "hunter2", Database: "fieldops_prod"},
			want: "fieldops:hunter2@tcp(db.vpc.internal:3306)/fieldops_prod?parseTime=true",
		},
		{
			name: "no database selected",
			cfg:  config.DBConfig{Host: "127.0.0.1", Port: 3306, User: "root"},
			want: "root@tcp(127.0.0.1:3306)/?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_ParseTimeFlag(t *testing.T) {
	dsn := DSN(config.DBConfig{Host: "localhost", Port: 3306, User: "root", Database: "test"})
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestConnect_RequiresServer(t *testing.T) {
	// Connect requires a running MySQL server; verify the function
	// signature compiles and returns (*gorm.DB, error).
	var fn func(config.DBConfig) (*gorm.DB, error) = Connect
	if fn == nil {
		t.Fatal("Connect function is nil")
	}
}

func TestConnectAdmin_RequiresServer(t *testing.T) {
	var fn func(config.DBConfig) (*gorm.DB, error) = ConnectAdmin
	if fn == nil {
		t.Fatal("ConnectAdmin function is nil")
	}
}

func TestAllModels_Count(t *testing.T) {
	all := AllModels()
	if len(all) != 10 {
		t.Errorf("AllModels() returned %d models, want 10", len(all))
	}
}

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return gdb
}

func TestAutoMigrate_CreatesAllTables(t *testing.T) {
	gdb := openMemoryDB(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestSeedProjects_InsertsAndUpserts(t *testing.T) {
	gdb := openMemoryDB(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	projects := []config.ProjectConfig{
		{ID: "proj-1", Name: "Northern Survey", Country: "Kenya"},
		{ID: "proj-2", Name: "Coastal Monitoring", Country: "Tanzania"},
	}
	if err := SeedProjects(gdb, projects); err != nil {
		t.Fatalf("SeedProjects: %v", err)
	}

	var count int64
	gdb.Model(&models.Project{}).Count(&count)
	if count != 2 {
		t.Fatalf("project count = %d, want 2", count)
	}

	// Re-seeding with a changed name updates the existing row.
	projects[0].Name = "Northern Survey Phase II"
	if err := SeedProjects(gdb, projects); err != nil {
		t.Fatalf("SeedProjects (again): %v", err)
	}

	gdb.Model(&models.Project{}).Count(&count)
	if count != 2 {
		t.Errorf("project count after re-seed = %d, want 2", count)
	}

	var p models.Project
	if err := gdb.First(&p, "id = ?", "proj-1").Error; err != nil {
		t.Fatalf("load proj-1: %v", err)
	}
	if p.Name != "Northern Survey Phase II" {
		t.Errorf("Name = %q, want %q", p.Name, "Northern Survey Phase II")
	}
	if !p.Active {
		t.Error("seeded project should be active")
	}
}
