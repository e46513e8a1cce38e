// Package scheduler drives the daily pipeline: derive user-behavior
// signals, then run candidate generation / feature building /
// scoring for the active player universe, on a cadence
// loaded from YAML the same way the retrieval pack's scan scheduler
// loads its job list. Model training and evaluation run on
// their own, slower cadence as distinct job types.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/transferintel/scout/internal/candidates"
	"github.com/transferintel/scout/internal/concurrency"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/derive"
	"github.com/transferintel/scout/internal/evaluate"
	"github.com/transferintel/scout/internal/features"
	"github.com/transferintel/scout/internal/metrics"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/score"
	"github.com/transferintel/scout/internal/timetravel"
	"github.com/transferintel/scout/internal/train"
)

// Job types this scheduler knows how to dispatch. A YAML job file may
// enable any subset; an unknown type fails the run rather than
// silently no-opping.
const (
	JobTypeDailyPipeline = "daily.pipeline"
	JobTypeModelTrain    = "model.train"
	JobTypeModelEvaluate = "model.evaluate"
)

// Job represents a scheduled job configuration.
type Job struct {
	Name        string    `yaml:"name"`
	Schedule    string    `yaml:"schedule"` // cron format, informational only: no cron engine runs it
	Type        string    `yaml:"type"`     // "daily.pipeline", "model.train", "model.evaluate"
	Description string    `yaml:"description"`
	Enabled     bool      `yaml:"enabled"`
	Config      JobConfig `yaml:"config"`
}

// JobConfig holds job-specific configuration. Zero values fall back to
// the process-wide config.SchedulerConfig defaults at run time.
type JobConfig struct {
	HorizonDays        int    `yaml:"horizon_days"`
	MaxPlayers         int    `yaml:"max_players"`
	ActivePlayersQuery string `yaml:"active_players_query"`
	Workers            int    `yaml:"workers"`
	ModelType          string `yaml:"model_type"`
	TrainLookbackDays  int    `yaml:"train_lookback_days"`
	EvalWindowDays     int    `yaml:"eval_window_days"`
}

// SchedulerConfig holds the YAML-loaded job list.
type SchedulerConfig struct {
	Jobs   []Job        `yaml:"jobs"`
	Global GlobalConfig `yaml:"global"`
}

// GlobalConfig holds global scheduler settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	Timezone string `yaml:"timezone"`
}

// Status represents scheduler status.
type Status struct {
	Running      bool          `yaml:"running"`
	EnabledJobs  int           `yaml:"enabled_jobs"`
	DisabledJobs int           `yaml:"disabled_jobs"`
	LastRun      time.Time     `yaml:"last_run"`
	Uptime       time.Duration `yaml:"uptime"`
}

// JobResult represents the result of a job execution.
type JobResult struct {
	JobName   string        `yaml:"job_name"`
	StartTime time.Time     `yaml:"start_time"`
	EndTime   time.Time     `yaml:"end_time"`
	Duration  time.Duration `yaml:"duration"`
	Success   bool          `yaml:"success"`
	Error     string        `yaml:"error,omitempty"`
	Summary   string        `yaml:"summary,omitempty"`
}

// Scheduler manages and executes scheduled jobs against the pipeline
// packages. It is stateless between runs: every dependency it needs is
// wired in at construction, and RunJob can be called directly (by the
// CLI's daily:run) without Start's polling loop.
type Scheduler struct {
	jobConfig SchedulerConfig
	appConfig config.SchedulerConfig

	repo   persistence.Repository
	reader *timetravel.Reader
	mx     *metrics.Collector

	derivator *derive.Derivator
	generator *candidates.Generator
	builder   *features.Builder
	engine    *score.Engine
	trainer   *train.Trainer
	evaluator *evaluate.Evaluator
	sampler   features.NegativeSampler

	startTime time.Time
	lastRun   time.Time
	running   bool
}

// Deps bundles the constructed pipeline components a Scheduler drives.
// Building these is the caller's job (cmd/scout wires them from a
// persistence.Repository and config.Config) so the scheduler itself
// stays free of connection setup.
type Deps struct {
	Repo      persistence.Repository
	Reader    *timetravel.Reader
	Metrics   *metrics.Collector
	Derivator *derive.Derivator
	Generator *candidates.Generator
	Builder   *features.Builder
	Engine    *score.Engine
	Trainer   *train.Trainer
	Evaluator *evaluate.Evaluator
	Sampler   features.NegativeSampler
}

// NewScheduler loads the job list from configPath and wires it against deps.
func NewScheduler(configPath string, appCfg config.SchedulerConfig, deps Deps) (*Scheduler, error) {
	jobCfg, err := loadJobConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler job config: %w", err)
	}

	return &Scheduler{
		jobConfig: jobCfg,
		appConfig: appCfg,
		repo:      deps.Repo,
		reader:    deps.Reader,
		mx:        deps.Metrics,
		derivator: deps.Derivator,
		generator: deps.Generator,
		builder:   deps.Builder,
		engine:    deps.Engine,
		trainer:   deps.Trainer,
		evaluator: deps.Evaluator,
		sampler:   deps.Sampler,
	}, nil
}

func loadJobConfig(configPath string) (SchedulerConfig, error) {
	var cfg SchedulerConfig
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Global.LogLevel == "" {
		cfg.Global.LogLevel = "info"
	}
	if cfg.Global.Timezone == "" {
		cfg.Global.Timezone = "UTC"
	}
	return cfg, nil
}

// ListJobs returns all configured jobs.
func (s *Scheduler) ListJobs() []Job {
	return s.jobConfig.Jobs
}

// GetStatus returns current scheduler status.
func (s *Scheduler) GetStatus() Status {
	var enabled, disabled int
	for _, job := range s.jobConfig.Jobs {
		if job.Enabled {
			enabled++
		} else {
			disabled++
		}
	}

	var uptime time.Duration
	if s.running {
		uptime = time.Since(s.startTime)
	}

	return Status{
		Running:      s.running,
		EnabledJobs:  enabled,
		DisabledJobs: disabled,
		LastRun:      s.lastRun,
		Uptime:       uptime,
	}
}

// Start polls the job list once a minute, running every enabled job on
// every tick; lastRun is recorded for Status, not consulted. There is
// no cron parser here: Schedule is a human-readable hint — daily:run
// and the k8s CronJob equivalent are the operationally real schedulers;
// this loop exists for the long-lived-process deployment shape.
func (s *Scheduler) Start(ctx context.Context) error {
	s.running = true
	s.startTime = time.Now()
	log.Info().Int("jobs", len(s.jobConfig.Jobs)).Msg("scheduler starting")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.running = false
			return ctx.Err()
		case <-ticker.C:
			s.runEnabledJobs(ctx)
		}
	}
}

func (s *Scheduler) runEnabledJobs(ctx context.Context) {
	for _, job := range s.jobConfig.Jobs {
		if !job.Enabled {
			continue
		}
		result := s.RunJob(ctx, job)
		s.lastRun = result.EndTime
		if !result.Success {
			log.Error().Str("job", job.Name).Str("error", result.Error).Msg("scheduled job failed")
		}
	}
}

// RunJob dispatches job.Type to the matching pipeline stage and
// returns a JobResult regardless of outcome; a failure is reported in
// the result rather than returned as an error, so a caller running a
// batch of jobs can keep going past one failure.
func (s *Scheduler) RunJob(ctx context.Context, job Job) JobResult {
	result := JobResult{JobName: job.Name, StartTime: time.Now()}

	var err error
	switch job.Type {
	case JobTypeDailyPipeline:
		err = s.runDailyPipeline(ctx, job.Config)
	case JobTypeModelTrain:
		err = s.runModelTrain(ctx, job.Config)
	case JobTypeModelEvaluate:
		err = s.runModelEvaluate(ctx, job.Config)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
	}
	return result
}

func (s *Scheduler) horizonDays(jc JobConfig) int {
	if jc.HorizonDays > 0 {
		return jc.HorizonDays
	}
	return s.appConfig.HorizonDays
}

func (s *Scheduler) maxPlayers(jc JobConfig) int {
	if jc.MaxPlayers > 0 {
		return jc.MaxPlayers
	}
	return s.appConfig.ActivePlayersLimit
}

func (s *Scheduler) workers(jc JobConfig) int {
	if jc.Workers > 0 {
		return jc.Workers
	}
	return s.appConfig.Workers
}

// runDailyPipeline implements the derive-generate-build-score chain: derive
// signals for every active player, then score them through
// score.Engine.Run, which internally performs candidate
// generation, feature building, and scoring per player.
func (s *Scheduler) runDailyPipeline(ctx context.Context, jc JobConfig) error {
	asOf := time.Now().UTC()
	horizonDays := s.horizonDays(jc)
	query := jc.ActivePlayersQuery
	if query == "" {
		query = s.appConfig.ActivePlayersQuery
	}

	playerIDs, err := features.ActivePlayerIDs(ctx, s.repo.Reference, query, s.maxPlayers(jc))
	if err != nil {
		return fmt.Errorf("daily pipeline: failed to list active players: %w", err)
	}

	if err := s.deriveSignals(ctx, playerIDs, asOf, s.workers(jc)); err != nil {
		return fmt.Errorf("daily pipeline: signal derivation: %w", err)
	}

	timer := s.stageTimer("score")
	runResult := s.engine.Run(ctx, playerIDs, asOf, horizonDays)
	result := "ok"
	if runResult.Failures > 0 {
		result = "partial_failure"
	}
	s.stopStage(timer, result)
	if s.mx != nil {
		s.mx.PredictionsScored.Add(float64(runResult.SnapshotsWritten))
	}
	for range runResult.FailureDetails {
		s.recordStageError("score")
	}

	log.Info().
		Int("players", runResult.PlayersProcessed).
		Int("snapshots", runResult.SnapshotsWritten).
		Int("failures", runResult.Failures).
		Msg("daily pipeline: scoring complete")

	if runResult.ViewRefreshError != "" {
		log.Warn().Str("error", runResult.ViewRefreshError).Msg("daily pipeline: market-view refresh failed")
	} else {
		log.Info().Int("keys_invalidated", runResult.ViewKeysInvalidated).Msg("daily pipeline: market-view refreshed")
	}

	if runResult.PlayersProcessed == 0 {
		return fmt.Errorf("daily pipeline: no active players found for query %q", query)
	}
	return nil
}

// deriveSignals runs signal derivation for playerIDs, bounded by workers, covering
// both derived signal types: attention velocity per player, and
// destination co-occurrence per (player, club) pair the user's own
// view history has already surfaced.
func (s *Scheduler) deriveSignals(ctx context.Context, playerIDs []string, asOf time.Time, workers int) error {
	timer := s.stageTimer("derive")

	attentionWindow := time.Duration(s.derivationWindowDays()) * 24 * time.Hour

	errs := concurrency.Run(ctx, workers, playerIDs, func(ctx context.Context, playerID string) error {
		if _, err := s.derivator.UserAttentionVelocity(ctx, playerID, asOf, attentionWindow); err != nil {
			return fmt.Errorf("player %s: attention velocity: %w", playerID, err)
		}

		coview, err := s.repo.UserEvents.CooccurringClubViews(ctx, playerID, persistence.TimeRange{
			From: asOf.Add(-attentionWindow * 7), To: asOf.Add(time.Nanosecond),
		})
		if err != nil {
			return fmt.Errorf("player %s: cooccurring club views: %w", playerID, err)
		}
		for clubID := range coview {
			if _, err := s.derivator.UserDestinationCooccurrence(ctx, playerID, clubID, asOf, attentionWindow); err != nil {
				return fmt.Errorf("player %s / club %s: destination cooccurrence: %w", playerID, clubID, err)
			}
		}
		return nil
	})

	var failures int
	for _, err := range errs {
		if err != nil {
			failures++
			s.recordStageError("derive")
			log.Warn().Err(err).Msg("derive: player signal derivation failed")
		}
	}

	result := "ok"
	if failures > 0 {
		result = "partial_failure"
	}
	s.stopStage(timer, result)
	return nil
}

func (s *Scheduler) derivationWindowDays() int {
	// Fixed at a week; the scheduler does not read a derivation window
	// from config. A shorter-than-a-week attention window produces too
	// few events to be meaningful for most players.
	return 7
}

// runModelTrain builds the training frame from the
// ledger's qualifying completed transfers and fit a model.
func (s *Scheduler) runModelTrain(ctx context.Context, jc JobConfig) error {
	trainAsOf := time.Now().UTC()
	horizonDays := s.horizonDays(jc)

	lookbackDays := jc.TrainLookbackDays
	if lookbackDays <= 0 {
		lookbackDays = s.appConfig.TrainLookbackDays
	}
	lookback := time.Duration(lookbackDays) * 24 * time.Hour

	modelType := train.ModelType(jc.ModelType)
	if modelType == "" {
		modelType = train.ModelType(s.appConfig.ModelType)
	}

	timer := s.stageTimer("train")

	frame, err := s.builder.BuildTrainingFrame(ctx, s.repo.Ledger, s.sampler, trainAsOf, lookback, horizonDays)
	if err != nil {
		s.stopStage(timer, "error")
		return fmt.Errorf("model train: failed to build training frame: %w", err)
	}
	if len(frame.Rows) == 0 {
		s.stopStage(timer, "error")
		return fmt.Errorf("model train: training frame produced zero rows (skipped %d leakage, %d failures)", frame.SkippedLeakage, frame.SkippedFailures)
	}

	result, err := s.trainer.Train(ctx, frame.Rows, modelType, horizonDays, trainAsOf)
	if err != nil {
		s.stopStage(timer, "error")
		return fmt.Errorf("model train: %w", err)
	}
	s.stopStage(timer, "ok")
	if s.mx != nil {
		s.mx.ModelsTrained.Inc()
	}

	log.Info().
		Int64("model_version_id", result.ModelVersionID).
		Int("rows", len(frame.Rows)).
		Int("skipped_leakage", frame.SkippedLeakage).
		Msg("model train: complete")
	return nil
}

// runModelEvaluate evaluates the most recently trained
// model version for this horizon over the trailing evaluation window.
func (s *Scheduler) runModelEvaluate(ctx context.Context, jc JobConfig) error {
	horizonDays := s.horizonDays(jc)
	modelName := fmt.Sprintf("transfer_xgb_%dd", horizonDays)

	versions, err := s.repo.Models.ListVersions(ctx, modelName, 1)
	if err != nil {
		return fmt.Errorf("model evaluate: failed to list model versions: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("model evaluate: no trained versions for %s", modelName)
	}

	windowDays := jc.EvalWindowDays
	if windowDays <= 0 {
		windowDays = s.appConfig.EvalWindowDays
	}
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(windowDays) * 24 * time.Hour)

	timer := s.stageTimer("evaluate")
	eval, err := s.evaluator.Evaluate(ctx, versions[0].ID, windowStart, windowEnd)
	if err != nil {
		s.stopStage(timer, "error")
		return fmt.Errorf("model evaluate: %w", err)
	}
	s.stopStage(timer, "ok")

	log.Info().
		Int64("model_version_id", versions[0].ID).
		Float64("auc_roc", eval.AUCROC).
		Msg("model evaluate: complete")
	return nil
}

func (s *Scheduler) stageTimer(stage string) *metrics.StageTimer {
	if s.mx == nil {
		return nil
	}
	return s.mx.StartStage(stage)
}

func (s *Scheduler) stopStage(timer *metrics.StageTimer, result string) {
	if timer == nil {
		return
	}
	timer.Stop(result)
}

func (s *Scheduler) recordStageError(stage string) {
	if s.mx == nil {
		return
	}
	s.mx.RecordStageError(stage)
}
