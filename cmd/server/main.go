package main

import (
	"context"
	"log"
	"os"

	"github.com/maxim/sportrank/internal/api"
	"github.com/maxim/sportrank/internal/auth"
	"github.com/maxim/sportrank/internal/db"
	"github.com/maxim/sportrank/internal/pipeline"
	"github.com/maxim/sportrank/internal/registry"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := registry.Load(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	store := db.NewStore(pool)
	norm := pipeline.LoadNormalizer(ctx, store)

	pl := pipeline.New(reg, store, norm)
	defer pl.Close()
	if err := pl.EnsureSources(ctx); err != nil {
		log.Fatalf("Failed to sync sources: %v", err)
	}

	srv := api.NewServer(store, auth.NewService(), pl, reg, norm)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(":" + port); err != nil {
		log.Fatal(err)
	}
}
