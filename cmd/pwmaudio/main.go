package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pwmaudio/internal/config"
	"pwmaudio/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./pwmaudio.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("pwmaudio starting with %d device(s)", len(cfg.Devices))

	rt, err := newRuntime(ctx, cfg, logs)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	<-ctx.Done()
	log.Printf("pwmaudio stopping")
	rt.Close()
}
