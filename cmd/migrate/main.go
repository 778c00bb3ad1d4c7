// This file is used to create or update the database schema
// How to run:
// go run cmd/migrate/main.go                       # Migrate the configured database
// go run cmd/migrate/main.go -driver postgres      # Override the driver
// go run cmd/migrate/main.go -dsn "host=... "      # Override the connection string
package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/labmate/labmate/config"
	"github.com/labmate/labmate/internal/db"
)

func main() {
	var (
		envFile   = flag.String("env", ".env", "Path of the dotenv file to load")
		driver    = flag.String("driver", "", "Database driver (optional, defaults to env vars)")
		dsn       = flag.String("dsn", "", "Database connection string (optional, defaults to env vars)")
		retries   = flag.Int("retries", 5, "Number of connection retries")
		retryWait = flag.Duration("retry-wait", 3*time.Second, "Wait time between retries")
	)
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Error loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *driver != "" {
		cfg.DB.Driver = *driver
	}
	if *dsn != "" {
		cfg.DB.DSN = *dsn
	}

	opts := db.Options{
		Driver:   cfg.DB.Driver,
		DSN:      cfg.DB.DSN,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
	}

	for attempt := 1; ; attempt++ {
		conn, err := db.New(opts)
		if err == nil {
			if sqlDB, err := conn.DB(); err == nil {
				_ = sqlDB.Close()
			}
			log.Printf("Schema is up to date (%s)", opts.Driver)
			return
		}
		if attempt >= *retries {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Attempt %d failed: %v, retrying in %s", attempt, err, *retryWait)
		time.Sleep(*retryWait)
	}
}
