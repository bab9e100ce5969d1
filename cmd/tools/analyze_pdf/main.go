package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/maxim/sportrank/internal/ocr"
)

func main() {
	file := flag.String("file", "", "Path to a local PDF")
	full := flag.Bool("full", false, "Run the full tiered extraction, not just the diagnostic")
	flag.Parse()

	if *file == "" {
		log.Fatal("Please provide -file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}

	engine := ocr.NewEngine(ocr.NewVisionOCR())

	diag, err := engine.Analyze(data)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	log.Printf("%s: %d pages, image streams: %v, recommendation: %s",
		*file, diag.PageCount, diag.HasImageStreams, diag.Recommendation)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Page", "Text Layer", "Readable Chars", "Preview"})
	for _, p := range diag.Pages {
		t.AppendRow(table.Row{p.Page, p.HasTextLayer, p.ReadableChars, p.Preview})
	}
	t.Render()

	if !*full {
		return
	}

	result, err := engine.Process(context.Background(), data)
	if err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}

	log.Printf("Extraction: method=%s confidence=%.2f chars=%d", result.Method, result.Confidence, len(result.Text))
	rt := table.NewWriter()
	rt.SetOutputMirror(os.Stdout)
	rt.AppendHeader(table.Row{"Page", "Method", "Confidence", "Chars"})
	for _, p := range result.Pages {
		rt.AppendRow(table.Row{p.Page, p.Method, p.Confidence, p.CharCount})
	}
	rt.Render()
}
