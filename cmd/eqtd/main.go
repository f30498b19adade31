/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hdais/eqt-server/config"
	"github.com/hdais/eqt-server/eqtlog"
	"github.com/hdais/eqt-server/transport"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("eqtd: %v", err)
	}

	eqtlog.Setup(cfg.Logfile)

	srv, err := transport.New(cfg.Registry, cfg.Port)
	if err != nil {
		log.Fatalf("eqtd: %v", err)
	}

	log.Printf("eqtd: listening on port %d", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("eqtd: received %v, shutting down", s)
		cancel()
	}()

	srv.Serve(ctx)
	log.Println("eqtd: shutdown complete")
}
