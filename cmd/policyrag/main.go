// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/policyrag"
	"github.com/poiesic/policyrag/config"
	"github.com/poiesic/policyrag/conversation"
	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/extract"
	"github.com/poiesic/policyrag/ingestion"
	"github.com/poiesic/policyrag/metrics"
	"github.com/poiesic/policyrag/rag"
	"github.com/poiesic/policyrag/reembed"
	"github.com/poiesic/policyrag/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "policyrag",
		Usage: "Answer questions about company policy documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set logging format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB data directory",
			},
			&cli.BoolFlag{
				Name:  "in-memory",
				Usage: "Keep all data in memory",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Upload documents and wait until they are indexed",
				ArgsUsage: "<file>...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mime-type",
						Usage: "MIME type of every file (detected from the extension by default)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Maximum time to wait for each document",
						Value: 5 * time.Minute,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question within a conversation",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Conversation session ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Answer language code (defaults to the conversation language)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Print the chunks most similar to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results (defaults to retrieval.topK)",
					},
				},
			},
			{
				Name:  "documents",
				Usage: "Manage uploaded documents",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List all documents",
						Action: listDocumentsCommand,
					},
					{
						Name:      "show",
						Usage:     "Show a document and its chunks",
						ArgsUsage: "<id>",
						Action:    showDocumentCommand,
					},
					{
						Name:      "delete",
						Usage:     "Delete a document and its chunks",
						ArgsUsage: "<id>",
						Action:    deleteDocumentCommand,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Summarize the searchable corpus",
				Action: statusCommand,
			},
			{
				Name:   "history",
				Usage:  "Print the messages of a conversation",
				Action: historyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session",
						Aliases:  []string{"s"},
						Usage:    "Conversation session ID",
						Required: true,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Replace the vectors of every ready chunk with fresh embeddings",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks embedded per call",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "test-connection",
				Usage:  "Check that the generation service answers",
				Action: testConnectionCommand,
			},
			{
				Name:   "languages",
				Usage:  "List the answer languages with a known name",
				Action: languagesCommand,
			},
		},
	}
}

// environment is the set of components one command runs against.
type environment struct {
	config        *config.Config
	db            *policyrag.Database
	index         *search.Linear
	pipeline      *ingestion.Pipeline
	orchestrator  *rag.Orchestrator
	conversations *conversation.Service
	metricsServer *http.Server
}

// openEnvironment loads the configuration, applies the global flags and
// builds every component.
func openEnvironment(c *cli.Context) (*environment, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("data-dir") {
		cfg.Data.Dir = c.String("data-dir")
	}
	if c.IsSet("in-memory") {
		cfg.Data.InMemory = c.Bool("in-memory")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if !c.IsSet("log-level") && !c.IsSet("log-format") {
		if err := configureLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbOpts := []policyrag.DatabaseOption{policyrag.WithAIConfig(cfg.ProviderConfig())}
	if cfg.AI.Embedder == config.EmbedderHash {
		dbOpts = append(dbOpts, policyrag.WithHashEmbedder())
	}
	if cfg.Data.InMemory {
		dbOpts = append(dbOpts, policyrag.WithInMemory())
	}
	db, err := policyrag.NewDatabase(cfg.Data.Dir, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	env := &environment{config: cfg, db: db}
	if err := env.build(); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (env *environment) build() error {
	cfg := env.config

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	var err error
	env.index, err = env.db.NewIndex(search.WithMonitor(collectors))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	extractors, err := extract.NewRegistry().Restrict(cfg.Upload.AllowedTypes...)
	if err != nil {
		return fmt.Errorf("invalid upload.allowedTypes: %w", err)
	}
	pipelineOpts := []ingestion.Option{
		ingestion.WithChunking(cfg.Chunking.Size, cfg.Chunking.Overlap),
		ingestion.WithEmbedBatchSize(cfg.Ingestion.EmbedBatchSize),
		ingestion.WithMaxUploadBytes(cfg.Upload.MaxBytes),
		ingestion.WithExtractors(extractors),
		ingestion.WithObserver(collectors.DocumentFinished),
	}
	if cfg.Ingestion.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	env.pipeline, err = env.db.NewIngestionPipeline(env.index, pipelineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}

	env.orchestrator, err = env.db.NewOrchestrator(env.index,
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithBaseLanguage(cfg.Retrieval.BaseLanguage),
		rag.WithMonitor(collectors),
	)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	env.conversations, err = env.db.NewConversationService(env.orchestrator,
		conversation.WithDefaultLanguage(cfg.Retrieval.BaseLanguage),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation service: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		env.serveMetrics(cfg.Metrics.Addr, registry)
	}
	return nil
}

func (env *environment) serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	env.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := env.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
}

// Close waits for queued ingestion and releases everything.
func (env *environment) Close() {
	if env.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := env.metricsServer.Shutdown(ctx); err != nil {
			slog.Error("error stopping metrics server", "err", err)
		}
	}
	if env.pipeline != nil {
		env.pipeline.Release()
	}
	if err := env.db.Close(); err != nil {
		slog.Error("error closing database", "err", err)
	}
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}

	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	out := c.App.Writer
	var failed int
	for _, path := range c.Args().Slice() {
		doc, err := ingestFile(c.Context, env.pipeline, path, c.String("mime-type"), c.Duration("timeout"))
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s\tfailed\t%v\n", path, err)
			continue
		}
		switch doc.Status {
		case core.StatusReady:
			fmt.Fprintf(out, "%s\t%d\tready\t%d chunks\n", path, doc.Id, doc.ChunkCount)
		default:
			failed++
			fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", path, doc.Id, doc.Status, doc.ErrorMessage)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, c.NArg())
	}
	return nil
}

func ingestFile(ctx context.Context, pipeline *ingestion.Pipeline, path, mimeType string, timeout time.Duration) (*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = detectMIMEType(path)
	}

	doc, err := pipeline.Upload(ctx, ingestion.UploadRequest{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Data:     data,
	})
	if doc == nil {
		return nil, err
	}
	// A document that could not be queued is already marked failed

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return pipeline.Await(waitCtx, doc.Id)
}

// extensionTypes covers the upload formats whose registration in the
// system MIME database varies between platforms.
var extensionTypes = map[string]string{
	".txt":      extract.MIMEPlainText,
	".text":     extract.MIMEPlainText,
	".md":       extract.MIMEMarkdown,
	".markdown": extract.MIMEMarkdown,
	".html":     extract.MIMEHTML,
	".htm":      extract.MIMEHTML,
	".pdf":      extract.MIMEPDF,
	".doc":      extract.MIMEWord,
	".docx":     extract.MIMEDocx,
}

// detectMIMEType maps a file extension to a MIME type.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("a question is required")
	}

	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if lang := c.String("language"); lang != "" && !rag.IsSupportedLanguage(lang) {
		slog.Warn("answer language has no known name, passing code to translation as is", "language", lang)
	}

	answer, err := env.conversations.Ask(c.Context, c.String("session"), question, c.String("language"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintln(out, answer.Content)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		printSources(out, answer.Sources)
	}
	return nil
}

func languagesCommand(c *cli.Context) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tLANGUAGE")
	for _, code := range rag.SupportedLanguages() {
		fmt.Fprintf(w, "%s\t%s\n", code, rag.LanguageName(code))
	}
	return w.Flush()
}

func printSources(out io.Writer, sources []core.Source) {
	for i, src := range sources {
		fmt.Fprintf(out, "  [%d] %s (chunk %d, similarity %.3f)\n",
			i+1, src.DocumentName, src.ChunkIndex, src.Similarity)
	}
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
	}

	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	k := c.Int("k")
	if k <= 0 {
		k = env.config.Retrieval.TopK
	}

	vector, err := env.db.Provider().Embedder().EmbedText(c.Context, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := env.index.Search(c.Context, vector, k)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(out, "No results")
		return nil
	}
	for i, result := range results {
		fmt.Fprintf(out, "%d. %.4f  %s #%d\n", i+1, result.Score, result.Document.OriginalName, result.Chunk.ChunkIndex)
		fmt.Fprintf(out, "   %s\n", preview(result.Chunk.Content, 120))
	}
	return nil
}

// preview collapses whitespace and truncates s to at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func listDocumentsCommand(c *cli.Context) error {
	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	docs, err := env.db.DocumentRepository().ListDocuments(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE\tSTATUS\tCHUNKS\tUPLOADED")
	for _, doc := range docs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
			doc.Id, doc.OriginalName, doc.MIMEType, doc.Size, doc.Status, doc.ChunkCount,
			doc.UploadedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func showDocumentCommand(c *cli.Context) error {
	id, err := documentIDArg(c)
	if err != nil {
		return err
	}

	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	repo := env.db.DocumentRepository()
	doc, err := repo.GetDocument(c.Context, id)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "ID:        %d\n", doc.Id)
	fmt.Fprintf(out, "Name:      %s\n", doc.OriginalName)
	fmt.Fprintf(out, "Stored as: %s\n", doc.Filename)
	fmt.Fprintf(out, "Type:      %s\n", doc.MIMEType)
	fmt.Fprintf(out, "Size:      %d bytes\n", doc.Size)
	fmt.Fprintf(out, "Checksum:  %s\n", doc.Checksum)
	fmt.Fprintf(out, "Status:    %s\n", doc.Status)
	fmt.Fprintf(out, "Uploaded:  %s\n", doc.UploadedAt.Format(time.RFC3339))
	switch doc.Status {
	case core.StatusReady:
		fmt.Fprintf(out, "Processed: %s\n", doc.ProcessedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Chunks:    %d\n", doc.ChunkCount)
	case core.StatusError:
		fmt.Fprintf(out, "Error:     %s\n", doc.ErrorMessage)
	}

	chunks, err := repo.GetChunks(c.Context, id)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		fmt.Fprintf(out, "\n#%d page=%s section=%s\n  %s\n",
			chunk.ChunkIndex, chunk.Metadata["page"], chunk.Metadata["section"], preview(chunk.Content, 120))
	}
	return nil
}

func deleteDocumentCommand(c *cli.Context) error {
	id, err := documentIDArg(c)
	if err != nil {
		return err
	}

	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.db.DocumentRepository().DeleteDocument(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted document %d\n", id)
	return nil
}

func documentIDArg(c *cli.Context) (core.ID, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("exactly one document ID is required")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid document ID %q", c.Args().First())
	}
	return core.ID(id), nil
}

func statusCommand(c *cli.Context) error {
	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	status, err := env.orchestrator.Status(c.Context)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "State:      %s\n", status.State)
	fmt.Fprintf(out, "Documents:  %d\n", status.DocumentCount)
	fmt.Fprintf(out, "Embeddings: %d\n", status.EmbeddingCount)
	if !status.LastUpdated.IsZero() {
		fmt.Fprintf(out, "Updated:    %s\n", status.LastUpdated.Format(time.RFC3339))
	}
	return nil
}

func historyCommand(c *cli.Context) error {
	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	messages, err := env.conversations.History(c.Context, c.String("session"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if len(messages) == 0 {
		fmt.Fprintln(out, "No messages")
		return nil
	}
	for _, msg := range messages {
		fmt.Fprintf(out, "[%s] %s (%s): %s\n",
			msg.Timestamp.Format(time.RFC3339), msg.Role, msg.OriginalLanguage, msg.Content)
		printSources(out, msg.Sources)
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	reembedder, err := env.db.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Embedder: %s\n", env.config.AI.Embedder)
	if env.config.AI.Embedder == config.EmbedderOpenAI {
		fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", env.config.AI.EmbeddingHost)
		fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", env.config.AI.EmbeddingModel)
	}
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func testConnectionCommand(c *cli.Context) error {
	env, err := openEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.orchestrator.TestConnection(c.Context); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Connected to %s (%s)\n", env.config.AI.GenerationHost, env.config.AI.GenerationModel)
	return nil
}

func setupLogger(c *cli.Context) error {
	return configureLogger(c.String("log-level"), c.String("log-format"), os.Stderr)
}

// configureLogger installs the default slog logger.
func configureLogger(levelStr, format string, w io.Writer) error {
	logger, err := newLogger(levelStr, format, w)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func newLogger(levelStr, format string, w io.Writer) (*slog.Logger, error) {
	// Map string to slog.Level
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of text, json", format)
	}
}
