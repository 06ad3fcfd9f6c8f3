package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"visioncraft/internal/catalog"
	"visioncraft/internal/config"
	"visioncraft/internal/contextopt"
	"visioncraft/internal/extraction"
	"visioncraft/internal/gaps"
	"visioncraft/internal/gateway"
	"visioncraft/internal/logging"
	"visioncraft/internal/merge"
	"visioncraft/internal/store"
	"visioncraft/internal/vision"
)

var (
	// Global flags
	verbose    bool
	configPath string
	useMemory  bool
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "visioncraft",
	Short: "visioncraft - chat-driven business vision document builder",
	Long: `visioncraft maintains a structured, versioned business vision document
built up from conversation turns.

Extracted facts are merged field-by-field under confidence thresholds, the
document is scored for completeness against a weighted field catalog, and
every write goes through an optimistic compare-and-swap commit so concurrent
sessions never silently clobber each other.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Category file logs are debug-gated by the config; a failure here
		// only costs the log files.
		if err := logging.Initialize("."); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// =============================================================================
// Composition root
// =============================================================================

// app wires the store, catalog, scorer, and gateway together. Explicit
// construction here; nothing reaches for globals.
type app struct {
	cfg     *config.Config
	store   store.RecordStore
	watcher *catalog.Watcher
	scorer  *gaps.Scorer
	gateway *gateway.Gateway
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var st store.RecordStore
	if useMemory || cfg.Store.DatabasePath == "memory" {
		st = store.NewMemoryStore()
	} else {
		st, err = store.NewSQLiteStore(cfg.Store.DatabasePath)
		if err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg, store: st}

	base := catalog.Default()
	switch {
	case cfg.Catalog.Watch && cfg.Catalog.OverridePath != "":
		w, err := catalog.NewWatcher(base, cfg.Catalog.OverridePath)
		if err != nil {
			st.Close()
			return nil, err
		}
		if err := w.Start(context.Background()); err != nil {
			st.Close()
			return nil, err
		}
		a.watcher = w
		a.scorer = gaps.NewDynamicScorer(w.Catalog)
	case cfg.Catalog.OverridePath != "":
		cat := base
		if _, err := os.Stat(cfg.Catalog.OverridePath); err == nil {
			cat, err = catalog.LoadOverride(base, cfg.Catalog.OverridePath)
			if err != nil {
				st.Close()
				return nil, err
			}
		}
		a.scorer = gaps.NewScorer(cat)
	default:
		a.scorer = gaps.NewScorer(base)
	}

	a.gateway = gateway.New(st, a.scorer)
	return a, nil
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
}

// =============================================================================
// Commands
// =============================================================================

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config already exists at %s", configPath)
		}
		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		logger.Info("wrote default config", zap.String("path", configPath))
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create [record-id]",
	Short: "Bootstrap a new vision record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		title, _ := cmd.Flags().GetString("title")

		rec, err := a.gateway.Create(ctx, id, title)
		if err != nil {
			return err
		}
		logger.Info("record created",
			zap.String("id", rec.ID),
			zap.Int64("version", rec.Version))
		fmt.Println(rec.ID)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [record-id] [message]",
	Short: "Extract facts from a message and merge them into the record",
	Long: `Runs one conversation turn through the pipeline: extraction, per-field
confidence merge, completeness scoring, and a compare-and-swap commit.

With --from-json the extraction step is skipped and the given file (or "-"
for stdin) is validated as a raw extraction payload instead. Without it the
configured Gemini model performs the extraction.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	rec, err := a.gateway.Get(ctx, id)
	if err != nil {
		return err
	}

	fromJSON, _ := cmd.Flags().GetString("from-json")

	var result extraction.Result
	switch {
	case fromJSON != "":
		raw, err := readInput(fromJSON)
		if err != nil {
			return err
		}
		result = extraction.Validate(string(raw))
	case len(args) >= 2:
		extractor, err := extraction.NewGeminiExtractor(ctx, a.cfg.LLM.APIKey, a.cfg.LLM.Model)
		if err != nil {
			return err
		}
		message := strings.Join(args[1:], " ")
		result, err = extractor.Extract(ctx, message, rec.State)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either a message or --from-json is required")
	}

	if result.Degraded() {
		logger.Warn("extraction degraded, nothing merged", zap.String("reason", result.Reason))
		return nil
	}
	if len(result.Dropped) > 0 {
		logger.Warn("extraction dropped invalid fields", zap.Strings("fields", result.Dropped))
	}

	merged := merge.Merge(rec.State, result.Fields, result.Custom)

	version := rec.Version
	commit, err := a.gateway.Commit(ctx, id, merged, &version)
	if err != nil {
		return err
	}
	if !commit.Ok() {
		return printConflict(commit.Conflict)
	}

	logger.Info("turn committed",
		zap.String("id", id),
		zap.Int64("version", commit.NewVersion),
		zap.Float64("completeness", commit.CompletenessScore))

	updated, err := a.gateway.Get(ctx, id)
	if err != nil {
		return err
	}
	assessment := a.scorer.Score(updated)
	if assessment.NextQuestion != nil {
		fmt.Printf("Next question: %s\n", assessment.NextQuestion.Text)
	}
	return nil
}

var scoreCmd = &cobra.Command{
	Use:   "score [record-id]",
	Short: "Score the record's completeness and list its gaps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.gateway.Get(ctx, args[0])
		if err != nil {
			return err
		}

		recentContext, _ := cmd.Flags().GetString("recent")
		assessment := a.scorer.ScoreWithContext(rec, recentContext)

		fmt.Printf("Completeness: %.1f / 100\n", assessment.CompletenessScore)
		fmt.Printf("Suggested focus: %s\n", assessment.SuggestedFocus)
		if len(assessment.CriticalGaps) > 0 {
			fmt.Printf("Critical gaps: %s\n", strings.Join(assessment.CriticalGaps, ", "))
		}
		if len(assessment.EnhancementGaps) > 0 {
			fmt.Printf("Enhancement gaps: %s\n", strings.Join(assessment.EnhancementGaps, ", "))
		}
		if assessment.NextQuestion != nil {
			fmt.Printf("Next question: %s\n", assessment.NextQuestion.Text)
		}
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context [record-id]",
	Short: "Assemble a budgeted context blob for the record",
	Long: `Builds the four memory layers (the record state as critical context plus
optional recent-conversation, user-memory, and retrieved-knowledge files)
and reduces them to the configured token budget.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.gateway.Get(ctx, args[0])
	if err != nil {
		return err
	}

	critical, err := json.MarshalIndent(rec.State, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render record state: %w", err)
	}

	layers := contextopt.Layers{
		Critical: contextopt.Layer{
			Kind:    contextopt.LayerCritical,
			Content: string(critical),
			Sources: []string{"record:" + rec.ID},
		},
	}
	if layers.Recent.Content, err = optionalFile(cmd, "recent-file"); err != nil {
		return err
	}
	if layers.UserMemory.Content, err = optionalFile(cmd, "memory-file"); err != nil {
		return err
	}
	if layers.RAG.Content, err = optionalFile(cmd, "rag-file"); err != nil {
		return err
	}

	budget, _ := cmd.Flags().GetInt("budget")
	if budget <= 0 {
		budget = a.cfg.Context.TokenBudget
	}

	out := contextopt.Optimize(layers, budget)

	logger.Info("context assembled",
		zap.Int("tokens", out.TokenCount),
		zap.Int("budget", budget),
		zap.Strings("strategies", out.AppliedStrategies))
	fmt.Println(out.Content)
	return nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [record-id] [state-file]",
	Short: "Resolve a version conflict and re-commit",
	Long: `Applies a resolution strategy (client_wins, server_wins, merge) between
the server's current state and the client state in the given JSON file,
then re-commits against the just-read version.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		raw, err := readInput(args[1])
		if err != nil {
			return err
		}
		var clientState vision.BusinessState
		if err := json.Unmarshal(raw, &clientState); err != nil {
			return fmt.Errorf("failed to parse client state: %w", err)
		}

		strategyName, _ := cmd.Flags().GetString("strategy")
		strategy := vision.ResolutionStrategy(strategyName)

		result, err := a.gateway.Resolve(ctx, args[0], clientState, strategy)
		if err != nil {
			return err
		}
		if !result.Ok() {
			return printConflict(result.Conflict)
		}

		logger.Info("conflict resolved",
			zap.String("id", args[0]),
			zap.String("strategy", strategyName),
			zap.Int64("version", result.NewVersion))
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [record-id]",
	Short: "Print the record's change log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.gateway.Audit(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no audit entries")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  v%d -> v%d  %-20s %s\n",
				e.CreatedAt.Format(time.RFC3339), e.OldVersion, e.NewVersion,
				e.ChangeType, e.MetadataJSON())
		}
		return nil
	},
}

// =============================================================================
// Helpers
// =============================================================================

func printConflict(c *vision.Conflict) error {
	state, err := json.MarshalIndent(c.CurrentState, "", "  ")
	if err != nil {
		state = []byte("{}")
	}
	fmt.Fprintf(os.Stderr, "version conflict: expected %d, current %d\ncurrent state:\n%s\n",
		c.ExpectedVersion, c.CurrentVersion, state)
	return fmt.Errorf("commit rejected, resolve with 'visioncraft resolve'")
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func optionalFile(cmd *cobra.Command, flag string) (string, error) {
	path, _ := cmd.Flags().GetString(flag)
	if path == "" {
		return "", nil
	}
	data, err := readInput(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "Use the in-memory store (no persistence)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	createCmd.Flags().String("title", "", "Initial record title")
	ingestCmd.Flags().String("from-json", "", "Validate a raw extraction payload file instead of calling the model (- for stdin)")
	scoreCmd.Flags().String("recent", "", "Recent conversation text for context-triggered questions")
	contextCmd.Flags().String("recent-file", "", "Recent conversation layer file")
	contextCmd.Flags().String("memory-file", "", "User memory layer file")
	contextCmd.Flags().String("rag-file", "", "Retrieved knowledge layer file")
	contextCmd.Flags().Int("budget", 0, "Token budget (default from config)")
	resolveCmd.Flags().String("strategy", "merge", "Resolution strategy: client_wins, server_wins, merge")

	rootCmd.AddCommand(initCmd, createCmd, ingestCmd, scoreCmd, contextCmd, resolveCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
