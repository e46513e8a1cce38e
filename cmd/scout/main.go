// Command scout is the operator-facing CLI and HTTP entrypoint for the
// transfer-intelligence service. It follows the teacher's
// flags-as-automation-shims convention (cmd/cryptorun) but without the
// interactive-menu default: every verb here is a direct, scriptable
// subcommand, matching a batch-job operator tool rather than a TUI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/transferintel/scout/internal/cache"
	"github.com/transferintel/scout/internal/candidates"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/derive"
	"github.com/transferintel/scout/internal/evaluate"
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/infrastructure/db"
	httpiface "github.com/transferintel/scout/internal/interfaces/http"
	scoutlog "github.com/transferintel/scout/internal/log"
	"github.com/transferintel/scout/internal/metrics"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/score"
	"github.com/transferintel/scout/internal/scheduler"
	"github.com/transferintel/scout/internal/seed"
	"github.com/transferintel/scout/internal/timetravel"
	"github.com/transferintel/scout/internal/train"
	"github.com/transferintel/scout/internal/whatchanged"
)

const version = "v0.1.0"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	root := &cobra.Command{
		Use:     "scout",
		Short:   "Transfer-intelligence prediction service",
		Version: version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(
		newServeCmd(),
		newIngestDemoCmd(),
		newFeaturesBuildCmd(),
		newModelTrainCmd(),
		newModelListCmd(),
		newModelEvaluateCmd(),
		newPredictRunCmd(),
		newPredictPlayerCmd(),
		newSignalsDeriveCmd(),
		newCandidatesGenerateCmd(),
		newCandidatesShowCmd(),
		newCandidatesAuditCmd(),
		newDailyRunCmd(),
		newDBCheckCmd(),
		newRefreshViewsCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// app bundles every constructed component a CLI command might need.
// Built fresh per invocation: these are short-lived batch commands, not
// a long-running process holding shared state across calls.
type app struct {
	cfg    *config.Config
	dbMgr  *db.Manager
	reader *timetravel.Reader

	generator *candidates.Generator
	builder   *features.Builder
	engine    *score.Engine
	trainer   *train.Trainer
	evaluator *evaluate.Evaluator
	derivator *derive.Derivator
	sampler   features.NegativeSampler

	metrics *metrics.Collector
	cache   *cache.Cache
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	mgr, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := mgr.Repository()
	if repo == nil {
		return nil, fmt.Errorf("database is disabled in config; this command requires persistence")
	}

	reader := timetravel.NewReader(repo.Signals, repo.UserEvents)
	generator := candidates.New(repo.Reference, repo.Signals, repo.Candidates, reader, cfg.Candidates)
	builder := features.NewBuilder(repo.Reference, reader)
	cacheClient := buildCache(cfg)
	engine := score.NewEngine(repo.Models, repo.Predictions, generator, builder, cfg.Scoring, cfg.Training.ModelStoragePath, cacheClient)
	trainer := train.NewTrainer(repo.Models, cfg.Training)
	sampler := features.NewUniformClubSampler(repo.Reference, cfg.Training.RandomSeed)
	evaluator := evaluate.NewEvaluator(repo.Models, repo.Ledger, builder, sampler)
	derivator := derive.New(repo.UserEvents, repo.Signals)
	collector := metrics.NewCollector()

	return &app{
		cfg: cfg, dbMgr: mgr, reader: reader,
		generator: generator, builder: builder, engine: engine,
		trainer: trainer, evaluator: evaluator, derivator: derivator,
		sampler: sampler, metrics: collector, cache: cacheClient,
	}, nil
}

func (a *app) close() {
	if a.dbMgr != nil {
		_ = a.dbMgr.Close()
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- serve -----------------------------------------------------------

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP read surface until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			repo := a.dbMgr.Repository()
			detector := whatchanged.NewDetector(repo.Signals)
			srv := httpiface.NewServer(a.cfg.HTTP, repo, a.reader, detector, a.dbMgr.Health(), a.cache, a.metrics)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			log.Info().Str("addr", srv.Address()).Msg("http server listening")

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

// --- ingest:demo -------------------------------------------------------

func newIngestDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest:demo",
		Short: "Seed the store with a small demo dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := seed.Load(cmd.Context(), a.dbMgr.Repository())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

// --- features:build ------------------------------------------------

func newFeaturesBuildCmd() *cobra.Command {
	var asOfStr string
	var horizonDays int
	cmd := &cobra.Command{
		Use:   "features:build",
		Short: "Build feature snapshots for every active player's current candidate set",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			repo := a.dbMgr.Repository()
			playerIDs, err := features.ActivePlayerIDs(cmd.Context(), repo.Reference, "", a.cfg.Scheduler.ActivePlayersLimit)
			if err != nil {
				return err
			}
			result := a.builder.BulkBuild(cmd.Context(), a.generator, repo.FeatureSnapshots, playerIDs, asOf, horizonDays)
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "as-of timestamp (RFC3339); defaults to now")
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	return cmd
}

// --- model:train ------------------------------------------------------

func newModelTrainCmd() *cobra.Command {
	var asOfStr, modelType string
	var horizonDays, lookbackDays int
	cmd := &cobra.Command{
		Use:   "model:train",
		Short: "Build a training frame from the ledger and fit a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			repo := a.dbMgr.Repository()
			lookback := time.Duration(lookbackDays) * 24 * time.Hour
			frame, err := a.builder.BuildTrainingFrame(cmd.Context(), repo.Ledger, a.sampler, asOf, lookback, horizonDays)
			if err != nil {
				return err
			}
			if len(frame.Rows) == 0 {
				return fmt.Errorf("training frame produced zero rows (skipped %d leakage, %d failures)", frame.SkippedLeakage, frame.SkippedFailures)
			}
			result, err := a.trainer.Train(cmd.Context(), frame.Rows, train.ModelType(modelType), horizonDays, asOf)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "training cutoff timestamp (RFC3339); defaults to now")
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	cmd.Flags().StringVar(&modelType, "model-type", string(train.ModelTypeLogistic), "model family: logistic|boosted_stumps")
	cmd.Flags().IntVar(&lookbackDays, "lookback", 365, "training frame lookback window in days")
	return cmd
}

// --- model:list ---------------------------------------------------------

func newModelListCmd() *cobra.Command {
	var horizonDays, limit int
	cmd := &cobra.Command{
		Use:   "model:list",
		Short: "List trained model versions for a horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			modelName := fmt.Sprintf("transfer_xgb_%dd", horizonDays)
			versions, err := a.dbMgr.Repository().Models.ListVersions(cmd.Context(), modelName, limit)
			if err != nil {
				return err
			}
			return printJSON(versions)
		},
	}
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to return")
	return cmd
}

// --- model:evaluate -----------------------------------------------------

func newModelEvaluateCmd() *cobra.Command {
	var modelVersionID int64
	var horizonDays, lookbackDays int
	cmd := &cobra.Command{
		Use:   "model:evaluate",
		Short: "Evaluate a trained model version over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if modelVersionID == 0 {
				modelName := fmt.Sprintf("transfer_xgb_%dd", horizonDays)
				versions, err := a.dbMgr.Repository().Models.ListVersions(cmd.Context(), modelName, 1)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					return fmt.Errorf("no trained versions for %s; pass --model-version explicitly", modelName)
				}
				modelVersionID = versions[0].ID
			}

			windowEnd := time.Now().UTC()
			windowStart := windowEnd.Add(-time.Duration(lookbackDays) * 24 * time.Hour)
			eval, err := a.evaluator.Evaluate(cmd.Context(), modelVersionID, windowStart, windowEnd)
			if err != nil {
				return err
			}
			return printJSON(eval)
		},
	}
	cmd.Flags().Int64Var(&modelVersionID, "model-version", 0, "model version id; defaults to the latest trained version for --horizon")
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	cmd.Flags().IntVar(&lookbackDays, "lookback", 90, "evaluation window lookback in days")
	return cmd
}

// --- predict:run / predict:player ---------------------------------------

func newPredictRunCmd() *cobra.Command {
	var asOfStr string
	var horizonDays, maxCandidates int
	cmd := &cobra.Command{
		Use:   "predict:run",
		Short: "Score every active player's candidate set",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			repo := a.dbMgr.Repository()
			playerIDs, err := features.ActivePlayerIDs(cmd.Context(), repo.Reference, "", maxCandidates)
			if err != nil {
				return err
			}
			result := a.engine.Run(cmd.Context(), playerIDs, asOf, horizonDays)
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "as-of timestamp (RFC3339); defaults to now")
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	cmd.Flags().IntVar(&maxCandidates, "max-candidates", 2000, "maximum number of players to score")
	return cmd
}

func newPredictPlayerCmd() *cobra.Command {
	var horizonDays int
	cmd := &cobra.Command{
		Use:   "predict:player <id>",
		Short: "Score a single player now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			asOf := time.Now().UTC()
			scorer := a.engine.LoadScorer(cmd.Context(), horizonDays)
			written, err := a.engine.ScorePlayer(cmd.Context(), scorer, args[0], asOf, horizonDays)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"player_id": args[0], "snapshots_written": written})
		},
	}
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	return cmd
}

// --- signals:derive -------------------------------------------------

func newSignalsDeriveCmd() *cobra.Command {
	var asOfStr string
	var windowDays int
	cmd := &cobra.Command{
		Use:   "signals:derive",
		Short: "Derive user-behavior signals for every active player",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}
			repo := a.dbMgr.Repository()
			playerIDs, err := features.ActivePlayerIDs(cmd.Context(), repo.Reference, "", a.cfg.Scheduler.ActivePlayersLimit)
			if err != nil {
				return err
			}

			window := time.Duration(windowDays) * 24 * time.Hour
			var derived, failed int
			for _, playerID := range playerIDs {
				if _, err := a.derivator.UserAttentionVelocity(cmd.Context(), playerID, asOf, window); err != nil {
					failed++
					log.Warn().Err(err).Str("player_id", playerID).Msg("attention velocity derivation failed")
					continue
				}
				derived++
				coview, err := repo.UserEvents.CooccurringClubViews(cmd.Context(), playerID, timeWindow(asOf, window*7))
				if err != nil {
					failed++
					continue
				}
				for clubID := range coview {
					if _, err := a.derivator.UserDestinationCooccurrence(cmd.Context(), playerID, clubID, asOf, window); err != nil {
						log.Warn().Err(err).Str("player_id", playerID).Str("club_id", clubID).Msg("destination cooccurrence derivation failed")
					}
				}
			}
			return printJSON(map[string]interface{}{"players_processed": derived, "failures": failed})
		},
	}
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "as-of timestamp (RFC3339); defaults to now")
	cmd.Flags().IntVar(&windowDays, "window", 7, "attention-velocity base window in days")
	return cmd
}

// --- candidates:generate / candidates:show / candidates:audit -----------

func newCandidatesGenerateCmd() *cobra.Command {
	var asOfStr, playerID string
	var horizonDays int
	cmd := &cobra.Command{
		Use:   "candidates:generate",
		Short: "Generate (or print the cached) candidate set for a player, or every active player",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			asOf, err := parseAsOf(asOfStr)
			if err != nil {
				return err
			}

			if playerID != "" {
				set, err := a.generator.Generate(cmd.Context(), playerID, asOf, horizonDays)
				if err != nil {
					return err
				}
				return printJSON(set)
			}

			repo := a.dbMgr.Repository()
			playerIDs, err := features.ActivePlayerIDs(cmd.Context(), repo.Reference, "", a.cfg.Scheduler.ActivePlayersLimit)
			if err != nil {
				return err
			}
			var generated, failed int
			for _, id := range playerIDs {
				if _, err := a.generator.Generate(cmd.Context(), id, asOf, horizonDays); err != nil {
					failed++
					continue
				}
				generated++
			}
			return printJSON(map[string]interface{}{"players_processed": generated, "failures": failed})
		},
	}
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "as-of timestamp (RFC3339); defaults to now")
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	cmd.Flags().StringVar(&playerID, "player-id", "", "restrict to a single player")
	return cmd
}

func newCandidatesShowCmd() *cobra.Command {
	var horizonDays int
	cmd := &cobra.Command{
		Use:   "candidates:show <player_id>",
		Short: "Print the latest cached candidate set for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			set, err := a.dbMgr.Repository().Candidates.LatestForPlayer(cmd.Context(), args[0], horizonDays)
			if err != nil {
				return err
			}
			if set == nil {
				return fmt.Errorf("no candidate set found for player %q at horizon %d", args[0], horizonDays)
			}
			return printJSON(set)
		},
	}
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	return cmd
}

func newCandidatesAuditCmd() *cobra.Command {
	var asOfStr string
	var limit int
	cmd := &cobra.Command{
		Use:   "candidates:audit",
		Short: "List the most recently generated candidate sets, for spot-checking",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := parseAsOf(asOfStr); err != nil {
				return err
			}
			repo := a.dbMgr.Repository()
			playerIDs, err := features.ActivePlayerIDs(cmd.Context(), repo.Reference, "", limit)
			if err != nil {
				return err
			}

			var rows []interface{}
			for _, id := range playerIDs {
				set, err := repo.Candidates.LatestForPlayer(cmd.Context(), id, 90)
				if err != nil || set == nil {
					continue
				}
				rows = append(rows, set)
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "as-of timestamp (RFC3339); defaults to now")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of players to inspect")
	return cmd
}

// --- daily:run ------------------------------------------------------

func newDailyRunCmd() *cobra.Command {
	var horizonDays int
	var skipDerive, skipTrain, skipEvaluate bool
	cmd := &cobra.Command{
		Use:   "daily:run",
		Short: "Run the full daily pipeline: derive -> candidates -> features -> score, with optional train/evaluate",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.buildScheduler()
			if err != nil {
				return err
			}

			jc := scheduler.JobConfig{HorizonDays: horizonDays}
			var steps []string
			if !skipDerive {
				steps = append(steps, "daily.pipeline")
			}
			if !skipTrain {
				steps = append(steps, "model.train")
			}
			if !skipEvaluate {
				steps = append(steps, "model.evaluate")
			}
			stepLog := scoutlog.NewStepLogger("daily:run", steps)

			var results []scheduler.JobResult
			runStage := func(name, jobType string) {
				stepLog.StartStep(name)
				result := s.RunJob(cmd.Context(), scheduler.Job{Name: name, Type: jobType, Config: jc})
				if result.Success {
					stepLog.CompleteStep()
				} else {
					stepLog.Fail(result.Error)
				}
				results = append(results, result)
			}
			if !skipDerive {
				runStage("daily.pipeline", scheduler.JobTypeDailyPipeline)
			}
			if !skipTrain {
				runStage("model.train", scheduler.JobTypeModelTrain)
			}
			if !skipEvaluate {
				runStage("model.evaluate", scheduler.JobTypeModelEvaluate)
			}
			stepLog.Finish()

			if err := printJSON(results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Success {
					return fmt.Errorf("daily run: stage %q failed: %s", r.JobName, r.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&horizonDays, "horizon", 90, "prediction horizon in days")
	cmd.Flags().BoolVar(&skipDerive, "skip-pipeline", false, "skip the derive+score stage")
	cmd.Flags().BoolVar(&skipTrain, "skip-train", false, "skip the model-train stage")
	cmd.Flags().BoolVar(&skipEvaluate, "skip-evaluate", false, "skip the model-evaluate stage")
	return cmd
}

func (a *app) buildScheduler() (*scheduler.Scheduler, error) {
	repo := *a.dbMgr.Repository()
	return scheduler.NewScheduler("", a.cfg.Scheduler, scheduler.Deps{
		Repo:      repo,
		Reader:    a.reader,
		Metrics:   a.metrics,
		Derivator: a.derivator,
		Generator: a.generator,
		Builder:   a.builder,
		Engine:    a.engine,
		Trainer:   a.trainer,
		Evaluator: a.evaluator,
		Sampler:   a.sampler,
	})
}

// --- db:check / refresh:views --------------------------------------

func newDBCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "db:check",
		Short: "Check database connectivity and report pool stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			health := a.dbMgr.Health().Health(cmd.Context())
			if err := printJSON(health); err != nil {
				return err
			}
			if !health.Healthy {
				return fmt.Errorf("database is unhealthy: %v", health.Errors)
			}
			return nil
		},
	}
}

func newRefreshViewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh:views",
		Short: "Invalidate the /market/latest cache so the next read recomputes from current signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if a.cache == nil {
				log.Info().Msg("no cache configured; nothing to invalidate")
				return nil
			}
			n, err := a.cache.InvalidatePrefix(cmd.Context(), "market:")
			if err != nil {
				return fmt.Errorf("failed to invalidate market cache: %w", err)
			}
			log.Info().Int("keys_invalidated", n).Msg("market cache invalidated")
			return nil
		},
	}
}

// --- shared helpers ---------------------------------------------------

func buildCache(cfg *config.Config) *cache.Cache {
	return cache.New(cfg.Cache.Addr, cfg.Cache.DB, cfg.Cache.TLS, time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second)
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of timestamp %q: %w", s, err)
	}
	return t, nil
}

func timeWindow(asOf time.Time, window time.Duration) persistence.TimeRange {
	return persistence.TimeRange{From: asOf.Add(-window), To: asOf.Add(time.Nanosecond)}
}
