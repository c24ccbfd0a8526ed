package llm

import "context"

// Completion is one answer from a text-understanding service.
type Completion struct {
	Content    string
	TokensUsed int64
	Model      string
}

// Completer is the interface the Structuring stage depends on. Implementations
// own their retry policy; callers do not retry.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error)
}
