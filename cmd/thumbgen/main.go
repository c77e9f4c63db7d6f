package main

import (
	"flag"
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"thumbgen/internal/server"
)

func main() {
	_ = godotenv.Load()

	sweepOnly := flag.Bool("sweep", false, "run a retention sweep and exit")
	flag.Parse()

	cfg := server.Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if *sweepOnly {
		tempRemoved, outputRemoved := server.RunSweeps(&cfg)
		log.Printf("sweep done: %d temp files, %d output files removed", tempRemoved, outputRemoved)
		return
	}

	srv := server.New(&cfg)

	log.Printf("starting server on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
