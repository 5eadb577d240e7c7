// Command migrate applies the SQL migrations under db/migrations.
package main

import (
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	source := flag.String("source", "file://db/migrations", "migration source URL")
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	flag.Parse()

	dsn := os.Getenv("QUIZ_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		logrus.Fatal("QUIZ_DATABASE_URL (or DATABASE_URL) is not set")
	}

	m, err := migrate.New(*source, dsn)
	if err != nil {
		logrus.Fatalf("migration setup failed: %v", err)
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logrus.Fatalf("database migration failed: %v", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		logrus.Fatalf("reading migration version: %v", verr)
	}
	logrus.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("database migrations applied")
}
