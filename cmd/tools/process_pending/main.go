package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/maxim/sportrank/internal/db"
	"github.com/maxim/sportrank/internal/pipeline"
	"github.com/maxim/sportrank/internal/registry"
)

func main() {
	limit := flag.Int("limit", 20, "Maximum orders to process")
	flag.Parse()

	ctx := context.Background()

	reg, err := registry.Load(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	store := db.NewStore(pool)

	norm := pipeline.LoadNormalizer(ctx, store)
	pl := pipeline.New(reg, store, norm)
	defer pl.Close()
	if err := pl.EnsureSources(ctx); err != nil {
		log.Fatalf("Failed to sync sources: %v", err)
	}

	started := time.Now()
	results, err := pl.ProcessPending(ctx, *limit)
	if err != nil {
		log.Fatalf("Processing failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Order", "Source", "OCR", "Pages", "Records"})
	var total int
	for _, r := range results {
		id := r.OrderID.String()
		if len(id) > 8 {
			id = id[:8]
		}
		t.AppendRow(table.Row{id, r.SourceCode, r.OCRMethod, r.PageCount, r.Records})
		total += r.Records
	}
	t.Render()

	log.Printf("Processed %d orders, %d records in %s", len(results), total, time.Since(started).Round(time.Second))
}
