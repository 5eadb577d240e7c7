// Command seed copies the bundled clue catalog (or a directory of catalog files) into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jason-s-yu/musicquiz/internal/catalog"
	"github.com/jason-s-yu/musicquiz/internal/database"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	dir := flag.String("dir", "", "directory of <source>.json files; the bundled catalog when empty")
	flag.Parse()

	dsn := os.Getenv("QUIZ_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		logrus.Fatal("QUIZ_DATABASE_URL (or DATABASE_URL) is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, dsn, logrus.StandardLogger())
	if err != nil {
		logrus.Fatal(err)
	}
	defer pool.Close()

	cat := catalog.Embedded()
	if *dir != "" {
		cat = catalog.Dir(*dir)
	}
	clues, err := cat.All(ctx)
	if err != nil {
		logrus.Fatalf("reading catalog: %v", err)
	}
	if err := database.UpsertClues(ctx, pool, clues); err != nil {
		logrus.Fatalf("seeding clues: %v", err)
	}
	logrus.Infof("seeded %d clues", len(clues))
}
