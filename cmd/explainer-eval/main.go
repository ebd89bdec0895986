// explainer-eval replays a JSON case file against the live pipeline and
// writes a scored report. Run it with real API keys in the environment;
// the cache is created fresh so every case computes from scratch.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/config"
	"github.com/charlesblakely0701-star/post-explainer/internal/eval"
	logpkg "github.com/charlesblakely0701-star/post-explainer/internal/logger"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/brave"
	geminiProv "github.com/charlesblakely0701-star/post-explainer/internal/transport/gemini"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/imagefetch"
	openaiProv "github.com/charlesblakely0701-star/post-explainer/internal/transport/openai"
	"github.com/charlesblakely0701-star/post-explainer/internal/transport/tavily"
	explainuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/explain"
	searchuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/search"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/synthesis"
	"github.com/charlesblakely0701-star/post-explainer/internal/version"
)

var (
	casesPath  string
	reportPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "explainer-eval",
	Short: "Offline evaluation harness for the explanation pipeline",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the evaluation cases and write a JSON report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEval(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&casesPath, "cases", "eval/cases.json", "path to the JSON case file")
	runCmd.Flags().StringVar(&reportPath, "out", "eval-report.json", "path for the JSON report")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "debug-level logging")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEval(ctx context.Context) error {
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting evaluation run",
		zap.String("version", version.Version),
		zap.String("cases", casesPath),
	)

	metrics.RegisterPipelineMetrics()

	cases, err := eval.LoadCases(casesPath)
	if err != nil {
		return err
	}

	explainer, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	report := eval.NewRunner(explainer, logger).Run(ctx, cases)

	if err := eval.WriteReport(reportPath, report); err != nil {
		return err
	}

	logger.Info("Evaluation finished",
		zap.String("run_id", report.RunID),
		zap.Int("cases", len(report.Cases)),
		zap.Float64("pass_rate", report.PassRate),
		zap.String("report", reportPath),
	)
	return nil
}

// buildPipeline wires the live pipeline with a fresh one-second cache so
// no case ever hits a stored result.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*explainuc.Service, error) {
	timeout := time.Duration(cfg.Search.TimeoutSec) * time.Second

	primary := tavily.New(&tavily.Config{APIKey: cfg.Search.TavilyAPIKey, Timeout: timeout})
	var secondary searchuc.Backend
	if cfg.Search.BraveAPIKey != "" {
		secondary = brave.New(&brave.Config{APIKey: cfg.Search.BraveAPIKey, Timeout: timeout})
	}
	searchSvc := searchuc.New(primary, secondary, searchuc.Options{
		MaxResults:        cfg.Search.MaxResults,
		ResultsPerQuery:   cfg.Search.ResultsPerQuery,
		MinPrimaryResults: cfg.Search.MinPrimaryResults,
		Timeout:           timeout,
	})

	var providers []synthesis.Provider
	for _, name := range cfg.ProviderOrder() {
		provCfg := cfg.Synthesis.Providers[name]
		if provCfg.APIKey == "" {
			continue
		}
		switch name {
		case "openai":
			providers = append(providers, openaiProv.New(&openaiProv.Config{
				APIKey:      provCfg.APIKey,
				BaseURL:     provCfg.BaseURL,
				Models:      provCfg.Models,
				MaxTokens:   cfg.Synthesis.MaxTokens,
				Temperature: cfg.Synthesis.Temperature,
				Vision:      provCfg.Vision,
				Logger:      logger,
			}))
		case "gemini":
			p, err := geminiProv.New(ctx, &geminiProv.Config{
				APIKey:      provCfg.APIKey,
				Models:      provCfg.Models,
				MaxTokens:   cfg.Synthesis.MaxTokens,
				Temperature: cfg.Synthesis.Temperature,
				Vision:      provCfg.Vision,
				Logger:      logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create gemini provider: %w", err)
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown synthesis provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no synthesis provider configured")
	}

	synthSvc := synthesis.New(providers, synthesis.Options{
		Timeout:       time.Duration(cfg.Synthesis.TimeoutSec) * time.Second,
		StreamTimeout: time.Duration(cfg.Synthesis.StreamTimeout) * time.Second,
	})

	images := imagefetch.New(
		time.Duration(cfg.Image.TimeoutSec)*time.Second,
		cfg.Image.MaxSizeBytes,
	)

	return explainuc.New(
		searchSvc, synthSvc, images,
		explainuc.NewCache(time.Second),
		explainuc.Options{CompareTimeout: time.Duration(cfg.Synthesis.CompareTimeout) * time.Second},
	), nil
}
