package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx := context.Background()

	connStr := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		connStr = os.Args[1]
	}
	if connStr == "" {
		log.Fatal("Usage: clean-db <connection-string> (or set DATABASE_URL)")
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("Cleaning database...")

	// Drop all data (in reverse dependency order)
	tables := []string{
		"storage_logs",
		"credit_logs",
		"members",
		"accounts",
		"plans",
	}

	for _, table := range tables {
		_, err := db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			fmt.Printf("Warning: failed to truncate %s: %v\n", table, err)
		} else {
			fmt.Printf("✓ Cleared %s\n", table)
		}
	}

	// Re-insert default plans
	fmt.Println("\nRe-inserting default plans...")
	plans := []struct {
		name, slug, interval string
		credits              int64
		storageGB            float64
		maxMembers           int
	}{
		{"AI Premium", "ai-premium", "30 minutes", 12500, 2048, 5},
		{"AI Premium Realtime", "ai-premium-realtime", "Real-time", 12500, 2048, 5},
		{"Basic", "basic", "60 minutes", 0, 100, 5},
	}

	for _, p := range plans {
		_, err := db.ExecContext(ctx, `
			INSERT INTO plans (name, slug, sync_interval, monthly_credits, storage_gb, max_members)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (slug) DO NOTHING
		`, p.name, p.slug, p.interval, p.credits, p.storageGB, p.maxMembers)

		if err != nil {
			log.Printf("Failed to insert plan %s: %v", p.name, err)
		} else {
			fmt.Printf("✓ Created plan: %s\n", p.name)
		}
	}

	fmt.Println("\n✓✓✓ Database cleaned and reset successfully!")
}
