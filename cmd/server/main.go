package main

import (
	"context"
	"log"

	"github.com/wadjakorntonsri/go-link-guard/pkg/app"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
)

func main() {
	cfg := config.Load()

	a, err := app.NewApp(cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
