package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codedread/spaces/internal/platform/fake"
	"github.com/codedread/spaces/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to an optional TOML config overlay")
	port := flag.String("port", "", "Control API port (overrides PORT env/config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *port)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("spaces reconciliation daemon starting")

	// The real browser platform host (native messaging over stdin/stdout)
	// is out of scope for this repo; the daemon runs against the same
	// in-memory fake double the test suite uses, ready to swap for a real
	// platform.Client once a browser extension host exists.
	plat := fake.New()

	srv, err := server.New(cfg, plat)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Engine().EnsureInitialized(ctx); err != nil {
		log.Fatalf("failed to initialize reconciliation engine: %v", err)
	}
	go srv.Engine().Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("shutting down gracefully")
		cancel()
		if err := srv.Close(ctx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("server error: %v", err)
	}
}
