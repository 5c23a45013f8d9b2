// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so "kotae server" from a project dir uses
// that project's config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "reports":
		runReports()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes components. It exits on failure.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("closing components failed", zap.Error(err))
		}
	}()
	logger.Info("config loaded", zap.String("config_path", resolved))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(&cfg.Session,
		session.WithLogger(logger), session.WithMetrics(components.Metrics))
	go registry.Run(ctx)

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			components.Indexer,
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		registry,
		auth.New(&cfg.Auth),
		cfg,
		server.WithLogger(logger),
		server.WithLedger(components.Ledger),
		server.WithGatherer(components.Registry),
	)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	force := fs.Bool("force", false, "re-embed files even when the ledger shows them unchanged")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae index [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	idx := components.Indexer
	ctx := context.Background()
	failed := false
	for _, target := range fs.Args() {
		info, err := os.Stat(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
			failed = true
			continue
		}
		if info.IsDir() {
			n, err := idx.IndexDirectory(ctx, target, cfg.Watch.Extensions)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
				failed = true
			}
			fmt.Printf("Indexed %d reports from %s\n", n, target)
			continue
		}
		var result *models.IndexResult
		if *force {
			result, err = forceIndexFile(ctx, idx, target)
		} else {
			result, err = idx.IndexFile(ctx, target, nil)
		}
		if errors.Is(err, indexer.ErrUnchanged) {
			fmt.Printf("Unchanged %s (use --force to re-embed)\n", target)
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", target, err)
			failed = true
			continue
		}
		if err := cli.WriteIndexResult(os.Stdout, result, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	}
	if failed {
		_ = components.Close()
		os.Exit(1)
	}
}

// forceIndexFile ingests path through IndexDocument, which records the ingest
// in the ledger without consulting it first.
func forceIndexFile(ctx context.Context, idx *indexer.Indexer, path string) (*models.IndexResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return idx.IndexDocument(ctx, f, filepath.Base(path))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL; empty answers locally from the configured index")
	token := fs.String("token", os.Getenv("KOTAE_TOKEN"), "bearer token for --server (default $KOTAE_TOKEN)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var answer *models.ChatAnswer
	if *serverURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		answer, err = newAPIClient(*serverURL, *token).Chat(ctx, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		answer = components.Engine.Ask(context.Background(), question)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runReports() {
	fs := flag.NewFlagSet("reports", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 20, "number of reports to list")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if components.Ledger == nil {
		fmt.Fprintln(os.Stderr, "No ledger configured (storage.ledger_path)")
		os.Exit(1)
	}
	records, err := components.Ledger.ListIngests(context.Background(), 0, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteIngests(os.Stdout, records, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	token := fs.String("token", os.Getenv("KOTAE_TOKEN"), "bearer token (default $KOTAE_TOKEN)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := newAPIClient(*serverURL, *token).Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", *path)
		os.Exit(1)
	}
	if err := config.Save(*path, defaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *path)
}

// defaultConfig is the starter config written by init: an offline setup with the
// memory index and mock embedder, persisted under ./data.
func defaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Vector.Type = "memory"
	cfg.Vector.MemoryPath = "./data/vectors.json"
	cfg.Embedding.Provider = "mock"
	cfg.Storage.LedgerPath = "./data/ledger.db"
	config.ApplyDefaults(cfg)
	return cfg
}

// buildQuestion joins all positional args with spaces so questions work the
// same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags (and their values) that appear after the positional
// arguments to the front so flag.Parse sees them. Go's flag package stops at the
// first non-flag argument, so "kotae ask what was revenue --output json" would
// otherwise leave --output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`kotae - Ask questions about your business reports

Usage:
  kotae server [flags]                  Start the HTTP and WebSocket server
  kotae index [flags] <path>...         Index reports (files or directories)
  kotae ask [flags] <question>          Ask a question
  kotae reports [flags]                 List ingested reports from the ledger
  kotae status [flags]                  Show server status
  kotae init [flags]                    Write a starter config file
  kotae version                         Show version
  kotae help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Index Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)
  --force            Re-embed files the ledger shows as unchanged

Ask Flags:
  --config string    Config file path (local mode)
  --server string    Server URL; empty answers locally (default: empty)
  --token string     Bearer token for --server (default: $KOTAE_TOKEN)
  --output string    Output format: text or json (default: text)

Reports Flags:
  --config string    Config file path
  --limit int        Number of reports (default: 20)
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --token string     Bearer token (default: $KOTAE_TOKEN)
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string    Where to write (default: ./config.yaml)
  --force            Overwrite an existing file

Environment:
  GEMINI_API_KEY, PINECONE_API_KEY, PINECONE_HOST, QDRANT_API_KEY override the config file.

Examples:
  kotae init
  kotae index reports/q3-2024.pdf
  kotae index ./reports
  kotae ask what was revenue in Q3
  kotae ask --server http://localhost:8080 --token secret "how did margins move"
  kotae status --output json`)
}
