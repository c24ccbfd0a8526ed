package pipeline

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Document identifies the source file of a run. It never changes after creation.
type Document struct {
	Path     string `json:"-"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Diagnostic is one entry of the append-only run log.
type Diagnostic struct {
	Time    time.Time       `json:"time"`
	Level   Level           `json:"level"`
	Stage   constants.Stage `json:"stage"`
	Message string          `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s", d.Time.Format("15:04:05"), d.Message)
}

// Metrics only ever grow during a run.
type Metrics struct {
	TokensUsed     int64         `json:"tokens_used"`
	ProcessingTime time.Duration `json:"processing_time"`
	EstimatedCost  float64       `json:"estimated_cost"`
}

// State is the record threaded through the stages of one run. It is owned by
// a single run and never shared.
type State struct {
	Document    Document
	RawText     string
	CleanedText string
	Fields      map[string]any
	Invoice     *entity.Invoice

	Stage       constants.Stage
	Status      constants.PipelineStatus
	Diagnostics []Diagnostic
	Metrics     Metrics
	Debug       map[string]any
	Failure     *common.AppError

	now func() time.Time
}

func newState(doc Document, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		Document: doc,
		Stage:    constants.StageIngestion,
		Status:   constants.PipelineProcessing,
		Debug:    map[string]any{},
		now:      now,
	}
}

// Failed reports whether the run reached the terminal FAILED status.
func (s *State) Failed() bool {
	return s.Status == constants.PipelineFailed
}

// enter moves the run to stage. Regressions are refused.
func (s *State) enter(stage constants.Stage) bool {
	if stage.Ordinal() < s.Stage.Ordinal() {
		return false
	}
	s.Stage = stage
	return true
}

func (s *State) append(level Level, msg string) {
	s.Diagnostics = append(s.Diagnostics, Diagnostic{
		Time:    s.now(),
		Level:   level,
		Stage:   s.Stage,
		Message: msg,
	})
}

func (s *State) Info(format string, args ...any) {
	s.append(LevelInfo, fmt.Sprintf(format, args...))
}

func (s *State) Warn(format string, args ...any) {
	s.append(LevelWarning, fmt.Sprintf(format, args...))
}

// Fail records a terminal failure at the current stage. Only the first failure is kept.
func (s *State) Fail(kind common.ErrorKind, message string, cause error) {
	if s.Failed() {
		return
	}
	msg := message
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", message, cause)
	}
	s.append(LevelError, msg)
	s.Failure = common.NewKindError(kind, string(s.Stage), message, cause)
	s.Status = constants.PipelineFailed
}

// complete marks a successful run. It has no effect after a failure.
func (s *State) complete() {
	if s.Failed() {
		return
	}
	s.Status = constants.PipelineCompleted
}

// SetDebug records a diagnostic fact; later writes to the same key win.
func (s *State) SetDebug(key string, value any) {
	s.Debug[key] = value
}

func (s *State) debugString(key string) string {
	v, _ := s.Debug[key].(string)
	return v
}

// addUsage adds tokens and their cost. Non-positive token counts are ignored.
func (s *State) addUsage(tokens int64, costPer1K float64) {
	if tokens <= 0 {
		return
	}
	s.Metrics.TokensUsed += tokens
	if costPer1K > 0 {
		s.Metrics.EstimatedCost += float64(tokens) / 1000 * costPer1K
	}
}

func (s *State) addElapsed(d time.Duration) {
	if d > 0 {
		s.Metrics.ProcessingTime += d
	}
}
