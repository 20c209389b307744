package context

import gocontext "context"

// SummaryContent is the structured condensation of an older history
// span, so later turns can still reason about prior actions without
// the original text.
type SummaryContent struct {
	Facts           []string
	ToolUsageCounts map[string]int
	FileReferences  []string
	Decisions       []string
}

// SummarizationResult is returned by a Summarizer's Summarize call: the
// structured fields plus the rendered text that replaces the span.
type SummarizationResult struct {
	Summary SummaryContent
	Text    string
}

// Summarizer condenses a span of entries into a single summary. This is
// the last-resort, lossy technique Manager.PrepareForLLM reaches for
// only when masking and compaction weren't enough; implementations call
// out to an LLM, so production code injects one backed by the provider
// gateway while tests can substitute a fake.
type Summarizer interface {
	Summarize(ctx gocontext.Context, entries []Entry) (SummarizationResult, error)
}
