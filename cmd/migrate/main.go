package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cyclopcam/logs"
	"github.com/kdimtricp/vtrack/internal/database"
)

func main() {
	var (
		dbPath = flag.String("db", getEnv("DB_PATH", "./vtrack.db"), "SQLite database path")
		status = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	log, err := logs.NewLog()
	if err != nil {
		panic(err)
	}

	db, err := database.NewDB(database.Config{SQLitePath: *dbPath})
	if err != nil {
		log.Criticalf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Conn(), log)

	if *status {
		if err := migrator.Initialize(); err != nil {
			log.Criticalf("Failed to initialize migrator: %v", err)
			os.Exit(1)
		}

		applied, err := migrator.GetAppliedMigrations()
		if err != nil {
			log.Criticalf("Failed to get applied migrations: %v", err)
			os.Exit(1)
		}

		migrations, err := migrator.LoadMigrations(database.Migrations())
		if err != nil {
			log.Criticalf("Failed to load migrations: %v", err)
			os.Exit(1)
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		for _, m := range migrations {
			status := "pending"
			if applied[m.Version] {
				status = "applied"
			}
			fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, status)
		}
		return
	}

	fmt.Printf("Running migrations on %s...\n", *dbPath)
	n, err := migrator.Run(database.Migrations())
	if err != nil {
		log.Criticalf("Failed to run migrations: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Migrations completed successfully! (%d applied)\n", n)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
