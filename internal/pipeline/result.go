package pipeline

import (
	"maps"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Failure describes why a run stopped.
type Failure struct {
	Kind    common.ErrorKind `json:"kind"`
	Stage   constants.Stage  `json:"stage"`
	Message string           `json:"message"`
}

type ResultMetrics struct {
	TokensUsed            int64   `json:"tokens_used"`
	ProcessingTimeSeconds float64 `json:"processing_time"`
	EstimatedCostUSD      float64 `json:"estimated_cost"`
}

// Result is the caller-facing projection of a finished run.
type Result struct {
	Filename string                   `json:"filename"`
	Stage    constants.Stage          `json:"stage"`
	Status   constants.PipelineStatus `json:"status"`
	Fields   map[string]any           `json:"extracted_fields"`
	Invoice  *entity.Invoice          `json:"invoice,omitempty"`
	Metrics  ResultMetrics            `json:"metrics"`
	Messages []string                 `json:"messages"`
	Warnings []string                 `json:"warnings"`
	Errors   []string                 `json:"errors"`
	Debug    map[string]any           `json:"debug_info"`
	Failure  *Failure                 `json:"failure,omitempty"`
}

func (r Result) Succeeded() bool {
	return r.Status == constants.PipelineCompleted
}

// Result projects the state. Fields is never nil so callers always see an object.
func (s *State) Result() Result {
	res := Result{
		Filename: s.Document.Filename,
		Stage:    s.Stage,
		Status:   s.Status,
		Fields:   maps.Clone(s.Fields),
		Invoice:  s.Invoice,
		Metrics: ResultMetrics{
			TokensUsed:            s.Metrics.TokensUsed,
			ProcessingTimeSeconds: round2(s.Metrics.ProcessingTime.Seconds()),
			EstimatedCostUSD:      s.Metrics.EstimatedCost,
		},
		Messages: []string{},
		Warnings: []string{},
		Errors:   []string{},
		Debug:    maps.Clone(s.Debug),
	}
	if res.Fields == nil {
		res.Fields = map[string]any{}
	}
	if res.Debug == nil {
		res.Debug = map[string]any{}
	}
	for _, d := range s.Diagnostics {
		switch d.Level {
		case LevelWarning:
			res.Warnings = append(res.Warnings, d.String())
		case LevelError:
			res.Errors = append(res.Errors, d.String())
		default:
			res.Messages = append(res.Messages, d.String())
		}
	}
	if s.Failure != nil {
		res.Failure = &Failure{
			Kind:    s.Failure.Kind,
			Stage:   constants.Stage(s.Failure.Stage),
			Message: s.Failure.Message,
		}
		if s.Failure.Cause != nil {
			res.Failure.Message += ": " + s.Failure.Cause.Error()
		}
	}
	return res
}
