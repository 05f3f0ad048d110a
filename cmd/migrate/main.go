package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"support-chat/config"
	"support-chat/pkg/database"
)

const usage = `
Support Chat - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Apply the embedded SQL migrations
  down        Roll back the embedded SQL migrations
  status      Show connection status and table row counts
  seed-dev    Seed an admin plus test customers with open conversations
  reset       Roll back, then re-apply every migration (DANGEROUS)
  truncate    Truncate all tables (DANGEROUS)

Flags:
  -admin-email string  Admin email for seeding (default "soporte@tienda.local")
  -test-users int      Number of test customers for seed-dev (default 3)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate -test-users 5 seed-dev
  go run ./cmd/migrate down
`

func main() {
	adminEmail := flag.String("admin-email", "soporte@tienda.local", "Admin email for seeding")
	testUsers := flag.Int("test-users", 3, "Number of test customers for seed-dev")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer pool.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx, pool)
	case "down":
		runMigrationsDown(ctx, pool)
	case "status":
		showStatus(ctx, pool)
	case "seed-dev":
		runSeedDevelopment(ctx, pool, *adminEmail, *testUsers)
	case "reset":
		runReset(ctx, pool)
	case "truncate":
		runTruncate(ctx, pool)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🚀 Running migrations UP...")

	applied, err := database.RunMigrations(ctx, pool)
	if err != nil {
		log.Fatalf("❌ Migration failed after %v: %v", applied, err)
	}
	for _, name := range applied {
		log.Printf("   - %s", name)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⬇️  Rolling back migrations...")

	if _, err := database.RollbackMigrations(ctx, pool); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🔍 Checking database status...")
	log.Println("✅ Database connection: OK")

	for _, table := range database.Tables {
		exists, err := database.TableExists(ctx, pool, table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.GetTableCount(ctx, pool, table)
			log.Printf("✅ Table %-20s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-20s does not exist", table)
		}
	}

	if err := database.HealthCheck(ctx, pool); err != nil {
		log.Printf("⚠️  Health check warning: %v", err)
	} else {
		log.Println("✅ Health check: PASSED")
	}
}

func runSeedDevelopment(ctx context.Context, pool *pgxpool.Pool, adminEmail string, testUsers int) {
	log.Println("🌱 Seeding database (development mode)...")

	result, err := database.Seed(ctx, pool, &database.SeedConfig{
		AdminEmail:      adminEmail,
		CreateTestUsers: testUsers > 0,
		TestUserCount:   testUsers,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	log.Printf("   - Admin user: %s (ID: %s)", result.AdminUser.Email, result.AdminUser.ID)
	log.Printf("   - Test users: %d", len(result.TestUsers))
	log.Printf("   - Conversations: %d", len(result.Conversations))
	log.Printf("   - Messages: %d", len(result.Messages))
	log.Println("✅ Development seeding completed!")
}

func runReset(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⚠️  WARNING: This will DROP all tables and re-run migrations!")

	if _, err := database.RollbackMigrations(ctx, pool); err != nil {
		log.Fatalf("❌ Failed to drop tables: %v", err)
	}

	log.Println("🚀 Running migrations...")
	if _, err := database.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database reset completed!")
}

func runTruncate(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⚠️  WARNING: This will TRUNCATE all tables!")

	if err := database.Truncate(ctx, pool); err != nil {
		log.Fatalf("❌ Truncate failed: %v", err)
	}

	log.Println("✅ All tables truncated!")
}
