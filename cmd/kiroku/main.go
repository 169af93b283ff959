// Package main is the Kiroku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/config"
	"github.com/hyperjump/kiroku/internal/extract"
	"github.com/hyperjump/kiroku/internal/graph"
	"github.com/hyperjump/kiroku/internal/keyword"
	"github.com/hyperjump/kiroku/internal/layout"
	"github.com/hyperjump/kiroku/internal/models"
	"github.com/hyperjump/kiroku/internal/provider"
	"github.com/hyperjump/kiroku/internal/server"
	"github.com/hyperjump/kiroku/internal/storage"
	"github.com/hyperjump/kiroku/internal/watcher"
	"github.com/hyperjump/kiroku/internal/worker"
	"github.com/hyperjump/kiroku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kiroku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kiroku server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
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
	case "add":
		runAdd()
	case "import":
		runImport()
	case "search":
		runSearch()
	case "process":
		runProcess()
	case "graph":
		runGraph()
	case "stats":
		runStats()
	case "watch":
		runWatchCommand()
	case "version", "--version", "-v":
		fmt.Printf("kiroku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file imports, watcher events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	embedWorker := worker.NewEmbedder(components.Storage, components.Provider, logger)
	embedWorker.Start()
	defer embedWorker.Stop()

	importer := watcher.NewImporter(components.Storage, extract.NewExtractor(), components.KeywordIndex, embedWorker, logger)
	watchSvc := watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := importer.ImportFile(context.Background(), path); err != nil {
				logger.Warn("watch import failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := importer.RemoveFile(context.Background(), path); err != nil {
				logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
			}
		},
		logger,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Storage,
		components.Provider,
		components.Builder,
		components.KeywordIndex,
		embedWorker,
		cfg,
		logger,
	)
	srv.EnableWatch(watchSvc, resolvedConfigPath)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// parseTags parses a comma-separated tag list. Each tag is "name:Category";
// a bare name gets category Other.
func parseTags(raw string) ([]models.Tag, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]models.Tag, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, category, found := strings.Cut(part, ":")
		tag := models.Tag{Name: strings.TrimSpace(name), Category: models.CategoryOther}
		if found {
			tag.Category = models.TagCategory(strings.TrimSpace(category))
			if !models.ValidCategory(tag.Category) {
				return nil, fmt.Errorf("unknown tag category %q (use Language, Framework, Concept, Task, or Other)", category)
			}
		}
		if tag.Name == "" {
			return nil, fmt.Errorf("empty tag name in %q", part)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// buildEntryContent joins all positional args with spaces so multi-word
// entries work the same with or without shell quoting.
func buildEntryContent(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	tagsFlag := fs.String("tags", "", "comma-separated tags, each name or name:Category")
	_ = fs.Parse(os.Args[2:])

	content := buildEntryContent(fs.Args())
	if content == "" {
		fmt.Println("Usage: kiroku add [flags] <entry text>")
		os.Exit(1)
	}
	tags, err := parseTags(*tagsFlag)
	if err != nil {
		fmt.Printf("Invalid tags: %v\n", err)
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	entry := &models.Entry{
		ID:      uuid.NewString(),
		Content: content,
		Tags:    tags,
		Source:  models.SourceManual,
	}
	ctx := context.Background()
	if err := components.Storage.CreateEntry(ctx, entry); err != nil {
		fmt.Printf("Create entry failed: %v\n", err)
		os.Exit(1)
	}
	if err := components.KeywordIndex.IndexEntry(ctx, entry); err != nil {
		logger.Warn("keyword indexing failed", zap.Error(err))
	}
	// Embed synchronously so the entry is graph-ready when the command returns.
	if result, embedErr := components.Provider.Embed(ctx, entry.Content); embedErr != nil {
		fmt.Printf("Entry created (%s) but embedding failed: %v\n", entry.ID, embedErr)
		fmt.Println("Run \"kiroku process\" when the embedding service is back.")
	} else if err := components.Storage.UpsertEmbedding(ctx, entry.ID, result.Vector, result.Chunks); err != nil {
		fmt.Printf("Entry created (%s) but storing the embedding failed: %v\n", entry.ID, err)
	} else {
		fmt.Printf("Entry created: %s\n", entry.ID)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kiroku import [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	components, logger := mustInitializeWithConfig(cfg)
	defer components.Close()
	defer logger.Sync()

	importer := watcher.NewImporter(components.Storage, extract.NewExtractor(), components.KeywordIndex, nil, logger)
	ctx := context.Background()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Cannot stat %s: %v\n", path, err)
		os.Exit(1)
	}
	if info.IsDir() {
		count, err := importer.ImportDir(ctx, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Printf("Import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d files from %s\n", count, path)
	} else {
		entry, err := importer.ImportFile(ctx, path)
		if err != nil {
			fmt.Printf("Import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %s as entry %s\n", path, entry.ID)
	}
	fmt.Println("Run \"kiroku process\" to embed the imported entries.")
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of results")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	query := buildEntryContent(fs.Args())
	if query == "" {
		fmt.Println("Usage: kiroku search [flags] <query>")
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	results, err := components.KeywordIndex.Search(ctx, query, *limit, &keyword.Options{
		TagBoost:     2.0,
		FuzzyEnabled: *fuzzy,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	type hit struct {
		Entry *models.Entry `json:"entry"`
		Score float64       `json:"score"`
	}
	hits := make([]hit, 0, len(results))
	for _, res := range results {
		entry, err := components.Storage.GetEntry(ctx, res.ID)
		if err != nil {
			continue
		}
		hits = append(hits, hit{Entry: entry, Score: res.Score})
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(hits)
		return
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		if suggestion := components.KeywordIndex.Suggest(query); suggestion != "" {
			fmt.Printf("Did you mean: %s\n", suggestion)
		}
		return
	}
	for i, h := range hits {
		fmt.Printf("%d. [%.3f] %s\n", i+1, h.Score, firstLine(h.Entry.Content))
	}
}

// firstLine truncates content to a single display line.
func firstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	return utils.Truncate(content, 100)
}

func runProcess() {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	count, err := components.Builder.ProcessUnprocessed(context.Background())
	if err != nil {
		fmt.Printf("Processing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Embedded %d entries\n", count)
}

// laidOutNode is a graph node with its final layout position.
type laidOutNode struct {
	*models.GraphNode
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func runGraph() {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "max nodes (0 = config default)")
	threshold := fs.Float64("threshold", 0, "minimum similarity for an edge")
	width := fs.Float64("width", 800, "layout width")
	height := fs.Float64("height", 600, "layout height")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	components, logger := mustInitializeWithConfig(cfg)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	nodeLimit := *limit
	if nodeLimit <= 0 {
		nodeLimit = cfg.Graph.NodeLimitDefault
	}
	ns, err := components.Builder.BuildNodes(ctx, nodeLimit)
	if err != nil {
		fmt.Printf("Build nodes failed: %v\n", err)
		os.Exit(1)
	}
	edges, err := components.Builder.BuildEdges(ctx, ns, *threshold)
	if err != nil {
		fmt.Printf("Build edges failed: %v\n", err)
		os.Exit(1)
	}

	params := layout.DefaultParams()
	params.EdgeCap = cfg.Graph.EdgeCap
	engine := layout.NewEngine(params, time.Now().UnixNano())
	ids := make([]string, len(ns.Nodes))
	for i, n := range ns.Nodes {
		ids[i] = n.ID
	}
	engine.Start(ids, edges, *width, *height)
	for engine.Step() {
	}

	out := struct {
		Nodes []laidOutNode       `json:"nodes"`
		Edges []*models.GraphEdge `json:"edges"`
	}{
		Nodes: make([]laidOutNode, len(ns.Nodes)),
		Edges: edges,
	}
	for i, n := range ns.Nodes {
		pos, _ := engine.PositionOf(n.ID)
		out.Nodes[i] = laidOutNode{GraphNode: n, X: pos.X, Y: pos.Y}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	stats, err := components.Builder.Stats(context.Background())
	if err != nil {
		fmt.Printf("Stats failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(stats)
}

func runWatchCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kiroku watch <add|remove|list> [flags] [path]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch "+sub, flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kiroku watch add [flags] <path>")
			os.Exit(1)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fmt.Printf("Invalid path: %v\n", err)
			os.Exit(1)
		}
		body, _ := json.Marshal(map[string]string{"path": path})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Watching: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kiroku watch remove [flags] <path>")
			os.Exit(1)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fmt.Printf("Invalid path: %v\n", err)
			os.Exit(1)
		}
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Provider     provider.Client
	KeywordIndex keyword.Index
	Builder      *graph.Builder
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	client := provider.NewHTTPClient(cfg.Provider.BaseURL, cfg.Provider.RequestTimeout, logger)
	builder := graph.NewBuilder(store, client, cfg.Graph, logger)

	return &Components{
		Storage:      store,
		Provider:     client,
		KeywordIndex: keywordIndex,
		Builder:      builder,
	}, nil
}

func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return mustInitializeWithConfig(cfg)
}

func mustInitializeWithConfig(cfg *config.Config) (*Components, *zap.Logger) {
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, logger
}

func printUsage() {
	fmt.Println(`kiroku - Developer journal knowledge graph

Usage:
  kiroku server [flags]             Start the HTTP server
  kiroku add [flags] <text>         Create a journal entry
  kiroku import [flags] <path>      Import a file or directory of journal files
  kiroku search [flags] <query>     Keyword search over entries
  kiroku process [flags]            Embed entries that have no vector yet
  kiroku graph [flags]              Export the laid-out graph as JSON
  kiroku stats [flags]              Show graph statistics
  kiroku watch <add|remove|list>    Manage watched journal directories
  kiroku version                    Show version
  kiroku help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kiroku/config.yaml)
  --debug            Enable debug logging (file imports, watcher events, etc.)

Add Flags:
  --config string    Config file path
  --tags string      Comma-separated tags, each name or name:Category
                     (categories: Language, Framework, Concept, Task, Other)

Search Flags:
  --config string    Config file path
  --limit int        Number of results (default: 10)
  --fuzzy            Enable fuzzy matching for typo tolerance
  --output string    Output format: text or json (default: text)

Graph Flags:
  --config string    Config file path
  --limit int        Max nodes (default from config)
  --threshold float  Minimum similarity for an edge (cosine, -1..1; default 0)
  --width float      Layout width (default 800)
  --height float     Layout height (default 600)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  kiroku server
  kiroku add --tags "Go:Language,debugging:Task" fixed the scheduler deadlock
  kiroku import ~/journal
  kiroku search "deadlock"
  kiroku process
  kiroku graph --threshold 0.35 > graph.json
  kiroku watch add ~/journal`)
}
