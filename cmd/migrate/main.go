/*
main.go - PostgreSQL schema migration runner

PURPOSE:
  Applies the goose migrations embedded in store/postgres against the
  database named by DATABASE_URL. The server runs "up" automatically on
  startup; this command exists for down/status/redo and CI pipelines.

USAGE:
  ./migrate            # up (default)
  ./migrate status
  ./migrate down
  ./migrate up-to 00001

SEE ALSO:
  - store/postgres/migrations/: the migration files
  - cmd/server/main.go: automatic "up" on postgres startup
*/
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/revinosolutions/dealer-loyality-sub003/config"
	"github.com/revinosolutions/dealer-loyality-sub003/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: .env not loaded, using system environment: %v", err)
	}

	cfg := config.Load()
	flag.Parse()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	st, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}
	command := arguments[0]

	if err := st.RunMigration(command, arguments[1:]...); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}
	fmt.Printf("goose %s success\n", command)
}
