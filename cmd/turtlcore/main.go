// Command turtlcore is the CLI entry point: loads configuration, wires up
// internal/core.App, and executes the cmd/cli command tree against it
// (spec.md §6's config keys; SPEC_FULL.md §0's cobra command-tree stack).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"turtlcore/cmd/cli"
	"turtlcore/internal/config"
	"turtlcore/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "turtlcore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configDir(), "config")
	if err != nil {
		return err
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	app, err := core.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)
	defer app.Shutdown(context.Background())

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go serveMetrics(addr, app.Metrics().Handler())
	}

	cli.Bind(app)
	return cli.Root().ExecuteContext(ctx)
}

// serveMetrics runs the Prometheus scrape endpoint for the life of the
// process. A listener failure (e.g. the address is already in use) is
// logged, not fatal — the client itself still runs without it.
func serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).WithField("addr", addr).Error("turtlcore: metrics listener failed")
	}
}

// configDir returns the directory config.Load reads config.yaml from:
// $TURTL_CONFIG_DIR if set, otherwise ~/.turtl (spec.md §6's on-disk
// layout convention for per-install configuration and data).
func configDir() string {
	if dir := os.Getenv("TURTL_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".turtl")
}
