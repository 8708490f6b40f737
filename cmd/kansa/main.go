// Package main is the Kansa CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/audit"
	"github.com/hyperjump/kansa/internal/cli"
	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/indexer"
	"github.com/hyperjump/kansa/internal/ingest"
	"github.com/hyperjump/kansa/internal/llm"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/server"
	"github.com/hyperjump/kansa/internal/storage"
	"github.com/hyperjump/kansa/internal/vectorstore"
	"github.com/hyperjump/kansa/internal/watcher"
	"github.com/hyperjump/kansa/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kansa/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads .env from the working directory, then the config file.
// When path is the default, config.yaml in the working directory wins if it
// exists; when neither exists the built-in defaults are used. Returns the
// config and the path actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", err
	}
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			path = ""
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
	case "ingest":
		runIngest()
	case "audit":
		runAudit()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kansa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// mustSetup loads config and creates the logger, exiting on failure.
func mustSetup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || debugFlag
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolved := mustSetup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	opts := []server.ServerOption{server.WithLogger(logger)}
	if components.Chain != nil {
		opts = append(opts, server.WithAuditor(components.Chain, components.LLM.Name()))
	}
	if len(cfg.Inbox.Directories) > 0 {
		inbox := watcher.NewWatcher(
			cfg.Inbox.Directories,
			cfg.Inbox.Extensions,
			cfg.Inbox.RecursiveOrDefault(),
			components.Indexer,
			watcher.WithLogger(logger),
		)
		if err := inbox.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		go inbox.Sync(ctx)
		opts = append(opts, server.WithWatch(inbox))
	}

	srv := server.NewServer(cfg, components.Manager, components.Indexer, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
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

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	mode := fs.String("mode", "", "index mode: replace or append (default from config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kansa ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	cfg, logger, _ := mustSetup(*configPath, *debug)
	defer logger.Sync()
	if *mode != "" {
		cfg.Index.Mode = *mode
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid mode: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	files, dirs, err := splitPaths(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if len(files) > 0 {
		n, err := components.Indexer.IndexFiles(ctx, files)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d chunk(s) from %d file(s) (%s)\n", n, len(files), cfg.Index.Mode)
	}
	for _, dir := range dirs {
		nFiles, nChunks, err := components.Indexer.IndexDirectory(ctx, dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest of %s failed: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d chunk(s) from %d file(s) in %s (%s)\n", nChunks, nFiles, dir, cfg.Index.Mode)
	}
}

// splitPaths separates file and directory arguments.
func splitPaths(args []string) (files, dirs []string, err error) {
	for _, p := range args {
		info, statErr := os.Stat(p)
		if statErr != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", p, statErr)
		}
		if info.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	return files, dirs, nil
}

func runAudit() {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the audit in-process)")
	query := fs.String("query", "", "question to answer (default: "+models.DefaultQuery+")")
	instruction := fs.String("instruction", "", "auditor instruction naming the fields to extract")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging (direct mode)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *query == "" && fs.NArg() > 0 {
		*query = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}
	req := models.AuditRequest{Query: *query, Instruction: *instruction}
	req.Normalize()

	var result models.AuditResult
	if *serverURL != "" {
		result, err = auditViaHTTP(*serverURL, &req, 5*time.Minute)
	} else {
		result, err = auditDirect(*configPath, *debug, &req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audit failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAuditResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func auditDirect(configPath string, debug bool, req *models.AuditRequest) (models.AuditResult, error) {
	cfg, logger, _ := mustSetup(configPath, debug)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	if components.Chain == nil {
		return nil, llm.ErrUnavailable
	}
	return components.Chain.Audit(ctx, req.Query, req.Instruction)
}

func auditViaHTTP(serverURL string, req *models.AuditRequest, timeout time.Duration) (models.AuditResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/audit", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var result models.AuditResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// serverError turns a non-200 response into an error carrying the server's
// message.
func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the vector store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status *models.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, _ := mustSetup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(context.Background(), cfg, logger, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status = localStatus(cfg, components)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func localStatus(cfg *config.Config, c *Components) *models.Status {
	status := &models.Status{
		Index: c.Manager.Info(),
		Retrieval: models.RetrievalSettings{
			K:      cfg.Retrieval.K,
			FetchK: cfg.Retrieval.FetchK,
			Lambda: cfg.Retrieval.Lambda,
		},
		Ingest: models.IngestSettings{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
			Mode:         cfg.Index.Mode,
		},
		Inbox: cfg.Inbox.Directories,
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.VectorStorePath, cfg.Storage.DataDir); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status
}

func statusViaHTTP(serverURL string) (*models.Status, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var s models.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Manager  *vectorstore.Manager
	Indexer  *indexer.Indexer
	// LLM and Chain are nil when no language model could be configured.
	LLM   llm.Client
	Chain *audit.Chain
}

// Close releases the index and the embedder.
func (c *Components) Close() {
	if c.Manager != nil {
		_ = c.Manager.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires the embedder, vector store and indexer, loading
// a persisted index when one exists. withLLM also sets up the language model
// and the audit chain; a missing model is logged, not fatal.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withLLM bool) (*Components, error) {
	emb, modelID, err := embedding.New(cfg.Embedding, cfg.LLM.OpenAI, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	manager := vectorstore.NewManager(cfg.Storage.VectorStorePath, emb,
		vectorstore.WithLogger(logger),
		vectorstore.WithIndexType(cfg.Vector.IndexType),
		vectorstore.WithModelID(modelID),
	)
	c := &Components{Embedder: emb, Manager: manager}
	if manager.Exists() {
		if err := manager.Load(ctx); err != nil {
			logger.Warn("could not load vector store", zap.String("dir", manager.Dir()), zap.Error(err))
		}
	}

	ingestor := ingest.NewIngestor(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, ingest.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(ingestor, manager, cfg.Index.Mode,
		indexer.WithLogger(logger),
		indexer.WithExtensions(cfg.Inbox.Extensions),
	)

	if !withLLM {
		return c, nil
	}
	client, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Warn("language model unavailable; audits are disabled", zap.Error(err))
		return c, nil
	}
	c.LLM = client
	c.Chain = audit.NewChain(
		manager.Retriever(cfg.Retrieval.K, cfg.Retrieval.FetchK, cfg.Retrieval.Lambda),
		client,
		audit.WithLogger(logger),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`kansa - Retrieval-augmented document auditing

Usage:
  kansa server [flags]                    Start the HTTP server
  kansa ingest [flags] <path>...          Index documents (files or directories)
  kansa audit [flags] [query]             Run an audit against the indexed documents
  kansa status [flags]                    Show index and configuration status
  kansa version                           Show version
  kansa help                              Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kansa/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --mode string      replace (rebuild the index from these paths) or append

Audit Flags:
  --server string       Server URL (default: http://localhost:8000). Use --server "" to run in-process.
  --query string        Question to answer (also accepted as positional words)
  --instruction string  Auditor instruction, e.g. "Extract the budget and methodology"
  --output string       Output format: text or json (default: text)
  --config string       Config file path (in-process mode)

Status Flags:
  --server string    Server URL (default: http://localhost:8000). Use --server "" to read the store directly.
  --output string    Output format: text or json (default: text)

Environment (.env is read from the working directory):
  DATA_DIR, VECTOR_DB_PATH, EMBEDDING_PROVIDER, EMBEDDING_MODEL_NAME,
  LLM_PROVIDER, LLM_MODEL_ID, AWS_REGION, OPENAI_API_KEY, OPENAI_BASE_URL

Examples:
  kansa server
  kansa ingest proposal.pdf
  kansa ingest --mode append ./proposals
  kansa audit --instruction "Extract budget and methodology" "Summarize the proposal"
  kansa audit --server "" --output json --query "What are the risks?"
  kansa status --output json`)
}
