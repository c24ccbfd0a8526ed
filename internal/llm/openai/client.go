package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	oai "github.com/openai/openai-go/v3"

	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
)

var _ llm.Completer = (*Client)(nil)

// Complete sends one system + user exchange and returns the first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (llm.Completion, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"prompt_len", len(userPrompt),
	)

	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(c.cfg.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(userPrompt),
		},
		Temperature: oai.Float(c.cfg.Temperature),
		TopP:        oai.Float(c.cfg.TopP),
		MaxTokens:   oai.Int(c.cfg.MaxTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = mapOpenAIError(err)
		c.logger.Error("llm.complete.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, errors.New("no choices in openai response")
	}

	out := llm.Completion{
		Content:    strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
	}
	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"model", out.Model,
		"tokens", out.TokensUsed,
		"content_len", len(out.Content),
		"finish_reason", resp.Choices[0].FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("openai status %d: %s: %w", apiErr.StatusCode, apiErr.Message, err)
		}
		return fmt.Errorf("openai status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai request: %w", err)
}
