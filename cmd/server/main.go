// Package main is the entry point for the gitdoor server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. The main package should be kept minimal; its job is to:
//  1. Read configuration
//  2. Create shared dependencies (the logger)
//  3. Start the application
//
// All actual logic lives in imported packages. server.New builds the full
// dependency graph from the config.
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points. A
// project might grow more executables later (cmd/migrate, cmd/admin);
// each gets its own directory with its own main.go.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/nafisb/gitdoor/internal/config"
	"github.com/nafisb/gitdoor/internal/server"
)

func main() {
	// Load .env if present. In development this holds the GitHub OAuth
	// credentials; in production the real environment wins, so a missing
	// file is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env file", slog.String("error", err.Error()))
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Ensure the database directory exists (like `mkdir -p`).
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("creating database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
