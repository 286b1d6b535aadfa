package main

import (
	"context"
	"flag"
	"log"
	"os"

	"AlphaPull/internal/di"
	"AlphaPull/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s backend=%s instruments=%d", cfg.Environment, cfg.Backend.Type, len(cfg.Instruments))

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if *once {
		report := app.RunOnce(context.Background())
		log.Printf("cycle done: pairs=%d succeeded=%d failed=%d duration=%s",
			len(report.Pairs), report.Succeeded(), report.Failed(), report.Duration)
		if report.Failed() > 0 {
			os.Exit(1)
		}
		return
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
