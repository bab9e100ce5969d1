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
	dryRun := flag.Bool("dry-run", false, "Check sources without writing to the database")
	flag.Parse()

	ctx := context.Background()

	reg, err := registry.Load(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	var store *db.Store
	if !*dryRun {
		pool, err := db.Connect(ctx)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		store = db.NewStore(pool)
	}

	pl := pipeline.New(reg, store, nil)
	defer pl.Close()
	if err := pl.EnsureSources(ctx); err != nil {
		log.Fatalf("Failed to sync sources: %v", err)
	}

	started := time.Now()
	results, err := pl.CheckSources(ctx)
	if err != nil {
		log.Fatalf("Check failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Status", "New Docs", "Page Hash", "Error"})

	for _, r := range results {
		hash := r.PageHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		t.AppendRow(table.Row{r.SourceCode, r.Status, len(r.NewDocs), hash, errMsg})
	}
	t.Render()

	log.Printf("Checked %d sources in %s", len(results), time.Since(started).Round(time.Second))
}
