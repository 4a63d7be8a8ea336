// Package cmd implements the lore command line.
//
// Commands:
//   - ask: one-shot retrieval query, rendered for the terminal
//   - index: re-index one base or all of them
//   - serve: HTTP API server
//   - mcp: Model Context Protocol server on stdio
//
// Every command follows the same shape: load configuration, build the
// logger, assemble the engine under a signal-canceled context, run,
// tear down.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
)

// Execute is the entry point for the lore CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ask":
		return runAsk()
	case "index":
		return runIndex()
	case "serve":
		return runServe()
	case "mcp":
		return runMCP()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// newLogger builds the process logger from configuration and installs
// it as the slog default, so library logging lands in the same handler.
func newLogger(cfg *config.Config) log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("unknown log level, using info", "log_level", cfg.LogLevel)
	}
	return logger
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Lore - knowledge base retrieval engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lore ask [flags] <question>   Query a knowledge base")
	fmt.Println("  lore index [base]             Re-index one base, or all when omitted")
	fmt.Println("  lore serve [addr]             Start the HTTP API server")
	fmt.Println("  lore mcp                      Start the MCP server (stdio)")
	fmt.Println("  lore version                  Show version information")
	fmt.Println("  lore help                     Show this help")
	fmt.Println()
	fmt.Println("Ask flags:")
	fmt.Println("  -base <name>   Knowledge base to query (default: first configured)")
	fmt.Println("  -image <path>  Attach an image to the query")
	fmt.Println("  -json          Print the raw outcome as JSON")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY   Gemini API key (gemini provider)")
	fmt.Println("  DATABASE_URL     PostgreSQL connection URL (overrides postgres_* keys)")
	fmt.Println("  LORE_LOG_LEVEL   debug, info, warn, or error")
	fmt.Println()
	fmt.Println("Configuration is read from ./lore.yaml or ~/.lore/lore.yaml.")
}
