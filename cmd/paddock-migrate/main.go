package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/paddockdb/paddock/pkg/cms"
)

var (
	databaseURL = flag.String("database-url", os.Getenv("PADDOCK_DATABASE__URL"), "Catalog PostgreSQL URL (postgres://...)")
	timeout     = flag.Duration("timeout", 2*time.Minute, "Overall timeout for the migration run")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Paddock Catalog Migration Tool

Usage:
  paddock-migrate [flags] up       Apply all pending migrations
  paddock-migrate [flags] down     Roll back the most recent migration
  paddock-migrate [flags] status   Show applied and pending migrations

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	if *databaseURL == "" {
		log.Fatal("A database URL is required (set --database-url or PADDOCK_DATABASE__URL)")
	}

	log.Println("Paddock Catalog Migration Tool")
	log.Println("==============================")

	store, err := cms.Open(*databaseURL, 2)
	if err != nil {
		log.Fatalf("Failed to connect to catalog database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "up":
		log.Println("Applying pending migrations...")
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("✓ Migrations applied successfully")
	case "down":
		log.Println("Rolling back the most recent migration...")
		if err := store.MigrateDown(ctx); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("✓ Rollback completed successfully")
	case "status":
		if err := store.MigrationStatus(ctx); err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
	default:
		log.Printf("Unknown command: %s", command)
		usage()
		os.Exit(2)
	}
}
