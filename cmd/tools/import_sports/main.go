package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"os"

	"github.com/maxim/sportrank/internal/db"
	"github.com/maxim/sportrank/internal/sports"
)

func main() {
	file := flag.String("file", "", "Path to the national sport registry spreadsheet")
	label := flag.String("label", "", "Version label for this import (e.g. vrvs-2025-01)")
	flag.Parse()

	if *file == "" {
		log.Fatal("Please provide -file")
	}
	if *label == "" {
		log.Fatal("Please provide -label")
	}

	list, err := sports.LoadRegistryFile(*file)
	if err != nil {
		log.Fatalf("Failed to parse registry: %v", err)
	}
	log.Printf("Parsed %d sports from %s", len(list), *file)

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}
	sum := sha256.Sum256(data)

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	entries := make([]db.SportEntry, 0, len(list))
	for _, s := range list {
		entries = append(entries, db.SportEntry{
			CodeBase:    s.CodeBase,
			CodeFull:    s.CodeFull,
			Section:     s.Section,
			Name:        s.Name,
			Disciplines: s.Disciplines,
		})
	}

	store := db.NewStore(pool)
	if err := store.SaveSportRegistry(ctx, *label, hex.EncodeToString(sum[:]), entries); err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	log.Printf("Imported %d sports as version %s", len(entries), *label)
}
