package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/gitchat/internal/config"
	"github.com/matheus3301/gitchat/internal/daemon"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default ~/.gitchat)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg, HTTPAddr: *addr}),
	)

	app.Run()
}
