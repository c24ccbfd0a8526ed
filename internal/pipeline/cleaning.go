package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reBlankLines = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// CleanText uppercases s, collapses whitespace runs into single spaces, squeezes
// three or more blank lines into one and trims the ends. It is idempotent.
func CleanText(s string) string {
	s = strings.ToUpper(s)
	s = reWhitespace.ReplaceAllString(s, " ")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CleaningStage normalizes raw text. It is best effort and never fails the run.
type CleaningStage struct {
	Logger *slog.Logger
}

func NewCleaningStage(logger *slog.Logger) *CleaningStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleaningStage{Logger: logger}
}

func (s *CleaningStage) Run(_ context.Context, st *State) {
	if strings.TrimSpace(st.RawText) == "" {
		st.SetDebug("cleaning_applied", false)
		st.Warn("no raw text to clean")
		s.Logger.Warn("pipeline.cleaning.skipped", "file", st.Document.Filename)
		return
	}

	cleaned := CleanText(st.RawText)
	before := utf8.RuneCountInString(st.RawText)
	after := utf8.RuneCountInString(cleaned)
	removed := before - after
	pct := 0.0
	if before > 0 {
		pct = round2(float64(removed) / float64(before) * 100)
	}

	st.CleanedText = cleaned
	st.SetDebug("cleaning_applied", true)
	st.SetDebug("characters_removed", removed)
	st.SetDebug("removal_percentage", pct)
	st.SetDebug("final_text_length", after)
	st.Info("text cleaned: %d characters removed (%.2f%%)", removed, pct)
}
