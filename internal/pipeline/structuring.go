package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
)

// DefaultServiceTimeout bounds a single call to the text-understanding service.
const DefaultServiceTimeout = 60 * time.Second

// StructuringStage turns cleaned text into invoice fields with an LLM.
type StructuringStage struct {
	Completer       llm.Completer
	Timeout         time.Duration
	CostPer1KTokens float64
	StrictSchema    bool
	Logger          *slog.Logger
}

func NewStructuringStage(completer llm.Completer, timeout time.Duration, costPer1K float64, strict bool, logger *slog.Logger) *StructuringStage {
	if timeout <= 0 {
		timeout = DefaultServiceTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuringStage{
		Completer:       completer,
		Timeout:         timeout,
		CostPer1KTokens: costPer1K,
		StrictSchema:    strict,
		Logger:          logger,
	}
}

func (s *StructuringStage) Run(ctx context.Context, st *State) {
	if st.CleanedText == "" {
		st.Fail(common.KindService, "no cleaned text available for structuring", nil)
		return
	}
	if s.Completer == nil {
		st.Fail(common.KindService, "text-understanding service is not configured", nil)
		return
	}

	sys, user, err := llm.BuildPrompts(st.CleanedText)
	if err != nil {
		st.Fail(common.KindService, "cannot build prompt", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	out, err := s.Completer.Complete(cctx, sys, user)
	elapsed := time.Since(start)
	if err != nil {
		msg := "text-understanding service call failed"
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			msg = "text-understanding service timed out"
		}
		s.Logger.Error("pipeline.structuring.service_error",
			"file", st.Document.Filename, "error", err, "elapsed_ms", elapsed.Milliseconds())
		st.Fail(common.KindService, msg, err)
		return
	}

	// Tokens are spent once a response arrives, whatever its shape.
	st.addUsage(out.TokensUsed, s.CostPer1KTokens)
	st.SetDebug("llm_model", out.Model)
	st.SetDebug("llm_tokens", out.TokensUsed)

	fields, err := llm.ParseObject(out.Content)
	if err != nil {
		st.Fail(common.KindService, "invalid response shape", err)
		return
	}

	if err := llm.ValidateInvoiceFields(fields); err != nil {
		if s.StrictSchema {
			st.Fail(common.KindService, "response does not match the invoice schema", err)
			return
		}
		st.Warn("response deviates from the invoice schema: %v", err)
	}

	inv, warnings := entity.InvoiceFromFields(fields)
	for _, w := range warnings {
		st.Warn("%s", w)
	}

	st.Fields = fields
	st.Invoice = inv
	st.SetDebug("fields_extracted", len(fields))
	st.SetDebug("items_count", len(inv.Items))

	s.Logger.Info("pipeline.structuring.ok",
		"file", st.Document.Filename,
		"model", out.Model,
		"tokens", out.TokensUsed,
		"fields", len(fields),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	st.Info("structured %d fields using %d tokens", len(fields), out.TokensUsed)
	st.complete()
}
