package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pbaille/mushroom/internal/api"
	"github.com/pbaille/mushroom/internal/assets"
	"github.com/pbaille/mushroom/internal/codec"
	"github.com/pbaille/mushroom/internal/config"
	"github.com/pbaille/mushroom/internal/domain"
	"github.com/pbaille/mushroom/internal/inference"
	"github.com/pbaille/mushroom/internal/metrics"
	"github.com/pbaille/mushroom/internal/pipeline"
	"github.com/pbaille/mushroom/internal/scoring"
	"github.com/pbaille/mushroom/internal/stats"
	"github.com/pbaille/mushroom/internal/store"
)

var (
	configPath string
	dbPath     string
	verbose    bool
	logger     *zap.Logger
	cfg        *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mushroom",
		Short:         "Mushroom edibility classifier with query log and statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zc := zap.NewProductionConfig()
			if verbose {
				zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = zc.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(labelsCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(serveModelCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(cfg.DBPath)
}

// getAnalyzer builds the pipeline. The classifier is only required when
// withClient is set so read-only commands work without credentials.
func getAnalyzer(s *store.Store, m *metrics.Metrics, withClient bool) (*pipeline.Analyzer, error) {
	var clf pipeline.Classifier
	if withClient {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		client, err := inference.New(cfg.Inference(), inference.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		clf = client
	} else {
		clf = unconfigured{}
	}
	return pipeline.New(clf, s, m, logger), nil
}

type unconfigured struct{}

func (unconfigured) Classify(context.Context, domain.FeatureVector) (domain.Verdict, error) {
	return domain.Edible, errors.New("classification endpoint not configured")
}

func labelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the accepted labels for every feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range domain.Categories {
				fmt.Printf("%s (--%s)\n", c.Title(), c)
				for _, l := range codec.Labels(c) {
					code, _ := codec.Encode(c, l)
					fmt.Printf("  %-12s %d\n", l, code)
				}
			}
			return nil
		},
	}
}

func classifyCmd() *cobra.Command {
	var sel domain.Selection
	targets := map[domain.Category]*string{
		domain.Odor:                  &sel.Odor,
		domain.SporePrintColor:       &sel.SporePrintColor,
		domain.GillColor:             &sel.GillColor,
		domain.RingType:              &sel.RingType,
		domain.StalkSurfaceAboveRing: &sel.StalkSurfaceAboveRing,
	}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a specimen and log the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := getAnalyzer(s, nil, true)
			if err != nil {
				return err
			}

			fmt.Print("Analyzing... ")
			res, err := a.Analyze(cmd.Context(), sel)
			if err != nil {
				fmt.Println("failed")
				return errors.New(pipeline.UserMessage(err))
			}
			fmt.Println("done")

			fmt.Printf("\n%s\n%s\n", res.Verdict, res.Message)
			if !res.Persisted() {
				fmt.Printf("(not logged: %s)\n", pipeline.UserMessage(res.PersistErr))
			}
			return nil
		},
	}

	for _, c := range domain.Categories {
		labels := codec.Labels(c)
		cmd.Flags().StringVar(targets[c], c.String(), labels[0], fmt.Sprintf("%s %v", c.Title(), labels))
	}
	return cmd
}

func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "List logged classifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.ReadAll(cmd.Context())
			if err != nil {
				return errors.New(pipeline.UserMessage(err))
			}
			if len(records) == 0 {
				fmt.Println("No classifications yet. Use 'mushroom classify' to run one.")
				return nil
			}

			for _, r := range records {
				fmt.Printf("%-10s %-10s %-10s %-10s %-10s %s\n",
					r.Odor, r.SporePrintColor, r.GillColor, r.RingType, r.StalkSurfaceAboveRing, r.Result)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics over the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := getAnalyzer(s, nil, false)
			if err != nil {
				return err
			}

			views, err := a.Statistics(cmd.Context())
			if errors.Is(err, stats.ErrNoData) {
				fmt.Println(pipeline.UserMessage(err))
				return nil
			}
			if err != nil {
				return errors.New(pipeline.UserMessage(err))
			}
			printViews(views)
			return nil
		},
	}
}

func printViews(v *stats.Views) {
	fmt.Printf("Total classifications: %d\n", v.Total)

	fmt.Println("\nOdor vs. result:")
	for _, c := range v.Density {
		fmt.Printf("  %-10s %-10s %d\n", c.Odor, c.Verdict, c.Count)
	}

	fmt.Println("\nSpore print composition:")
	for _, s := range v.Composition {
		fmt.Printf("  %-10s %3d  %5.1f%%\n", s.Label, s.Count, s.Percent())
	}

	fmt.Println("\nRing type -> result:")
	for _, b := range v.Hierarchy {
		fmt.Printf("  %s (%d)\n", b.RingType, b.Count)
		for _, l := range b.Children {
			fmt.Printf("    %-10s %d\n", l.Verdict, l.Count)
		}
	}

	fmt.Println("\nOdor -> gill color -> result:")
	for _, p := range v.Paths {
		fmt.Printf("  %s -> %s -> %s (%d)\n", p.Odor, p.GillColor, p.Verdict, p.Count)
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every logged classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := getAnalyzer(s, nil, false)
			if err != nil {
				return err
			}
			if err := a.Reset(cmd.Context()); err != nil {
				return errors.New(pipeline.UserMessage(err))
			}
			fmt.Println("Database cleared!")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			// Note: don't defer s.Close() as server runs indefinitely

			m := metrics.New()
			a, err := getAnalyzer(s, m, true)
			if err != nil {
				return err
			}

			var bg *assets.Background
			if cfg.Background != "" {
				bg, err = assets.LoadBackground(cmd.Context(), cfg.Background)
				if err != nil {
					logger.Warn("background not loaded", zap.String("source", cfg.Background), zap.Error(err))
				}
			}

			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			return api.New(a, m, bg, logger, cfg.Addr).Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "server address")
	return cmd
}

func serveModelCmd() *cobra.Command {
	var addr, apiKey string

	cmd := &cobra.Command{
		Use:   "serve-model",
		Short: "Serve a local odor-rule scoring endpoint for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := scoring.NewOdorRule()
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/score", scoring.NewHandler(rule, apiKey, logger))

			logger.Info("starting scoring endpoint", zap.String("addr", addr))
			return http.ListenAndServe(addr, mux)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8081", "server address")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "require this bearer token")
	return cmd
}
