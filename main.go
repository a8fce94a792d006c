package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"rag-console/api"
	"rag-console/backend"
	"rag-console/config"
	"rag-console/evidence"
	"rag-console/history"
	"rag-console/session"
	"rag-console/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "history":
		historyCmd(cfg, logger, os.Args[2:])
	case "export":
		exportCmd(cfg, logger, os.Args[2:])
	case "rebuild":
		rebuildCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Error("unknown command", zap.String("command", os.Args[1]))
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse serve flags", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	client := backend.NewClient(cfg.BackendURL)
	manager := session.NewManager(ctx, client, store, logger, session.Options{
		TopK:         cfg.TopK,
		UseFinetuned: cfg.UseFinetuned,
	})
	pipeline := history.NewPipeline(historySource(cfg, client, store, logger), client, logger)

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(manager, pipeline, client, logger),
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	logger.Info("serving", zap.String("addr", *addr), zap.String("backend", cfg.BackendURL))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("serve failed", zap.Error(err))
	}
}

func askCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask")
	topK := flags.Int("k", cfg.TopK, "retrieval breadth")
	finetuned := flags.Bool("finetuned", cfg.UseFinetuned, "use the finetuned model variant")
	offTopic := flags.Bool("offtopic", true, "show off-topic passages")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse ask flags", zap.Error(err))
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatal("read question", zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	client := backend.NewClient(cfg.BackendURL)
	manager := session.NewManager(ctx, client, store, logger, session.Options{
		TopK:         *topK,
		UseFinetuned: *finetuned,
	})

	answer, ok := manager.SubmitQuestion(ctx, *question)
	if !ok {
		logger.Fatal("question rejected")
	}

	fmt.Println(answer.Content)
	if answer.Meta == nil {
		return
	}

	if answer.Meta.TrustScore != nil {
		fmt.Printf("\nTrust score: %d\n", *answer.Meta.TrustScore)
	}
	if answer.Meta.LatencyMS != nil {
		fmt.Printf("Latency: %.0f ms\n", *answer.Meta.LatencyMS)
	}
	if answer.Meta.ModelUsed != "" {
		fmt.Printf("Model: %s\n", answer.Meta.ModelUsed)
	}

	passages := evidence.Filtered(answer.Meta.Passages, *offTopic)
	if len(passages) == 0 {
		return
	}
	fmt.Println("\nRetrieved passages:")
	for i, p := range passages {
		fmt.Printf("%d. %s #%d [%s] closeness %s\n",
			i+1, p.Source, p.Chunk, p.Relevance, evidence.DistanceWidth(p.Distance))
	}
}

func historyCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("history", flag.ExitOnError)
	source := flags.String("source", cfg.HistorySource, "run source: local or backend")
	search := flags.String("search", "", "filter questions by substring")
	status := flags.String("status", "all", "filter by status: all, good, mixed, off_topic, no_evidence")
	order := flags.String("order", "newest", "sort order: newest or oldest")
	label := flags.String("label", "", "assign this label to the run named by -run")
	runID := flags.String("run", "", "run id for -label")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse history flags", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg.HistorySource = *source
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	client := backend.NewClient(cfg.BackendURL)
	pipeline := history.NewPipeline(historySource(cfg, client, store, logger), client, logger)

	if err := pipeline.Refresh(ctx); err != nil {
		logger.Fatal("load runs", zap.Error(err))
	}

	if *label != "" {
		if err := pipeline.SetLabel(ctx, *runID, history.Label(*label)); err != nil {
			logger.Fatal("set label", zap.Error(err))
		}
		fmt.Printf("labeled run %s as %s\n", *runID, *label)
		return
	}

	stats := pipeline.Stats()
	fmt.Printf("Runs: %d  Passages: %d  Avg trust: %d  Good: %d  Off-topic: %d\n\n",
		stats.Runs, stats.Passages, stats.AvgTrust, stats.Good, stats.OffTopic)

	runs := pipeline.Select(history.Query{
		Search: *search,
		Status: *status,
		Order:  history.Order(*order),
	})
	for _, run := range runs {
		trust := "-"
		if run.TrustScore != nil {
			trust = fmt.Sprintf("%d", *run.TrustScore)
		}
		labelText := string(run.Label)
		if labelText == "" {
			labelText = "-"
		}
		fmt.Printf("[%s] trust=%s label=%s %s (%d passages)\n",
			history.StatusOf(run), trust, labelText, run.Question, len(run.Passages))
	}
}

func exportCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	out := flags.String("out", "rag_dataset.jsonl", "output file")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse export flags", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := backend.NewClient(cfg.BackendURL)
	data, err := client.ExportDataset(ctx)
	if err != nil {
		logger.Fatal("export dataset", zap.Error(err))
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Fatal("write dataset", zap.Error(err))
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), *out)
}

func rebuildCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("rebuild", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse rebuild flags", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := backend.NewClient(cfg.BackendURL)
	if err := client.Rebuild(ctx); err != nil {
		logger.Fatal("rebuild failed", zap.Error(err))
	}
	fmt.Println("index rebuilt")
}

func clearCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	alsoHistory := flags.Bool("history", false, "also clear the run history")
	source := flags.String("source", cfg.HistorySource, "run source for -history: local or backend")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse clear flags", zap.Error(err))
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the stored chat session. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatal("read confirmation", zap.Error(err))
			}
			fmt.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			fmt.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	client := backend.NewClient(cfg.BackendURL)
	manager := session.NewManager(ctx, client, store, logger, session.Options{TopK: cfg.TopK})
	if err := manager.Clear(ctx, true); err != nil {
		logger.Fatal("clear session", zap.Error(err))
	}
	fmt.Println("session cleared")

	if *alsoHistory {
		cfg.HistorySource = *source
		pipeline := history.NewPipeline(historySource(cfg, client, store, logger), client, logger)
		if err := pipeline.Clear(ctx, true); err != nil {
			logger.Fatal("clear run history", zap.Error(err))
		}
		fmt.Println("run history cleared")
	}
}

func historySource(cfg config.Config, client *backend.Client, store storage.Store, logger *zap.Logger) history.Source {
	if cfg.HistorySource == config.HistoryLocal {
		return history.NewLocalSource(store, logger)
	}
	return history.NewBackendSource(client, cfg.RunsLimit)
}

func printUsage() {
	fmt.Println("Usage: rag-console <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Serve the local HTTP API for the chat view")
	fmt.Println("  ask      Ask one question and print the answer with its evidence")
	fmt.Println("  history  Inspect or label past runs (use -source local|backend)")
	fmt.Println("  export   Download the evaluation dataset dump")
	fmt.Println("  rebuild  Trigger a full reindex on the backend")
	fmt.Println("  clear    Delete the stored chat session (add -history for the run log)")
}
