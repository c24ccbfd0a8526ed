package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
)

// Config tunes an Engine. Zero values fall back to defaults.
type Config struct {
	MaxFileSize     int64
	MaxPages        int
	MinPageChars    int
	MinProbeChars   int
	CostPer1KTokens float64
	ServiceTimeout  time.Duration
	StrictSchema    bool
}

const DefaultMaxFileSize = 10 * 1024 * 1024

// ConfigFrom maps the application settings onto engine settings.
func ConfigFrom(pc common.PipelineConfig) Config {
	return Config{
		MaxFileSize:     int64(pc.MaxFileSizeMB * 1024 * 1024),
		MaxPages:        pc.MaxPages,
		MinPageChars:    pc.MinPageChars,
		MinProbeChars:   pc.MinProbeChars,
		CostPer1KTokens: pc.CostPer1KTokens,
		ServiceTimeout:  pc.ServiceTimeout,
		StrictSchema:    pc.StrictSchema,
	}
}

// StageRunner is one step of the pipeline. It reports problems through the state.
type StageRunner interface {
	Run(ctx context.Context, st *State)
}

type step struct {
	stage  constants.Stage
	runner StageRunner
}

// Engine runs documents through ingestion, extraction, cleaning and structuring.
// It holds no per-run state and is safe for concurrent use.
type Engine struct {
	steps  []step
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

// WithClock replaces the clock used for diagnostics.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStage replaces the runner of one stage.
func WithStage(stage constants.Stage, r StageRunner) Option {
	return func(e *Engine) {
		for i := range e.steps {
			if e.steps[i].stage == stage {
				e.steps[i].runner = r
			}
		}
	}
}

func NewEngine(cfg Config, inspector extract.Inspector, backends *extract.Backends, completer llm.Completer, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if backends == nil {
		backends = extract.NewBackends()
	}
	selector := extract.NewSelector(backends.Ordered(), cfg.MinProbeChars, logger)
	e := &Engine{
		steps: []step{
			{constants.StageIngestion, NewIngestionStage(inspector, selector, cfg.MaxFileSize, logger)},
			{constants.StageExtraction, NewExtractionStage(backends, cfg.MaxPages, cfg.MinPageChars, logger)},
			{constants.StageCleaning, NewCleaningStage(logger)},
			{constants.StageStructuring, NewStructuringStage(completer, cfg.ServiceTimeout, cfg.CostPer1KTokens, cfg.StrictSchema, logger)},
		},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one document through every stage and always returns a Result.
// Failures, including panics inside a stage, are reported in the Result.
func (e *Engine) Process(ctx context.Context, path, filename string) (res Result) {
	if filename == "" {
		filename = filepath.Base(path)
	}
	doc := Document{Path: path, Filename: filename}
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		doc.Size = fi.Size()
	}
	st := newState(doc, e.now)
	jobID := common.JobIDFromContext(ctx)
	start := time.Now()

	e.logger.Info("pipeline.start", "file", filename, "job_id", jobID, "size", doc.Size)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("pipeline.panic",
				"file", filename, "job_id", jobID, "stage", st.Stage,
				"panic", r, "stack", string(debug.Stack()))
			st.Fail(common.KindInternal, "unexpected internal error", fmt.Errorf("panic: %v", r))
		}
		st.addElapsed(time.Since(start))
		res = st.Result()
		if res.Succeeded() {
			e.logger.Info("pipeline.ok",
				"file", filename, "job_id", jobID,
				"tokens", res.Metrics.TokensUsed,
				"elapsed_ms", time.Since(start).Milliseconds())
		} else {
			e.logger.Warn("pipeline.failed",
				"file", filename, "job_id", jobID,
				"stage", res.Stage, "kind", res.Failure.Kind, "error", res.Failure.Message,
				"elapsed_ms", time.Since(start).Milliseconds())
		}
	}()

	for _, s := range e.steps {
		if err := ctx.Err(); err != nil {
			st.Fail(common.KindInternal, "processing cancelled", err)
			break
		}
		if !st.enter(s.stage) {
			st.Fail(common.KindInternal, fmt.Sprintf("stage %s out of order", s.stage), nil)
			break
		}
		stageStart := time.Now()
		s.runner.Run(ctx, st)
		e.logger.Debug("pipeline.stage.done",
			"file", filename, "stage", s.stage, "status", st.Status,
			"elapsed_ms", time.Since(stageStart).Milliseconds())
		if st.Failed() {
			break
		}
	}

	if !st.Failed() && st.Status != constants.PipelineCompleted {
		st.Fail(common.KindInternal, "pipeline finished without a result", nil)
	}
	return res
}
