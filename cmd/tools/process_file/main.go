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
	sourceCode := flag.String("source", "", "Source code the document belongs to (e.g. moskva_moskomsport)")
	file := flag.String("file", "", "Path to a local PDF")
	save := flag.Bool("save", false, "Persist the result instead of a dry run")
	flag.Parse()

	if *sourceCode == "" || *file == "" {
		log.Fatal("Please provide -source and -file")
	}

	ctx := context.Background()

	reg, err := registry.Load(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	var store *db.Store
	if *save {
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

	norm := pipeline.LoadNormalizer(ctx, store)
	pl := pipeline.New(reg, store, norm)
	defer pl.Close()
	if err := pl.EnsureSources(ctx); err != nil {
		log.Fatalf("Failed to sync sources: %v", err)
	}

	result, err := pl.ProcessFile(ctx, *sourceCode, *file)
	if err != nil {
		log.Fatalf("Processing failed: %v", err)
	}
	printResult(result)
}

func printResult(result *pipeline.Result) {
	log.Printf("Processed %s: %d pages via %s (confidence %.2f), %d records",
		result.SourceCode, result.PageCount, result.OCRMethod, result.OCRConf, result.Records)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"FIO", "Birth Date", "Kind", "Rank", "Sport", "Conf"})
	for _, a := range result.Assignments {
		birth := a.BirthDateRaw
		if a.BirthDate != nil {
			birth = a.BirthDate.Format("02.01.2006")
		}
		t.AppendRow(table.Row{a.Fio, birth, a.AssignmentType, a.RankCategory, a.Sport, a.Confidence})
	}
	t.Render()

	for _, step := range result.Steps {
		log.Printf("  %-16s %-8s %s (%s)", step.Stage, step.Status, step.Message, step.Duration.Round(time.Millisecond))
	}
}
