package context

import (
	gocontext "context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Config holds the tunables the source calls out by name:
// max_context_tokens, mask_after_turns, compact_threshold_bytes,
// summarize_threshold_ratio, preserve_last_n_turns.
type Config struct {
	MaxContextTokens        int
	MaskAfterTurns          int
	CompactThresholdBytes   int
	SummarizeThresholdRatio float64
	PreserveLastNTurns      int
}

// DefaultConfig returns conservative defaults suitable for a
// 200K-token-class model.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:        150000,
		MaskAfterTurns:          6,
		CompactThresholdBytes:   4000,
		SummarizeThresholdRatio: 0.8,
		PreserveLastNTurns:      4,
	}
}

// Entry pairs a message with its already-loaded parts and the turn it
// belongs to (turn increments on every user message).
type Entry struct {
	Message *types.Message
	Parts   []types.Part
	Turn    int
}

// Usage is the totals and per-turn breakdown returned by Manager.Usage.
type Usage struct {
	TotalTokens int
	PerTurn     map[int]int
}

// ErrBudgetUnsatisfiable is returned by PrepareForLLM when masking,
// compaction, and summarization together still leave the history over
// budget (e.g. the protected window alone exceeds it).
var ErrBudgetUnsatisfiable = errors.New("context: budget unsatisfiable after mask, compact, and summarize")

// Manager maintains one session's message history and token accounting,
// and produces a budget-bounded view of it for the provider gateway via
// PrepareForLLM, applying mask -> compact -> summarize in that order and
// stopping as soon as the budget is met.
type Manager struct {
	mu sync.Mutex

	cfg        Config
	tokenizer  Tokenizer
	summarizer Summarizer
	sideStore  *SideStore
	masker     *ObservationMasker
	compactor  *ContextCompactor

	entries     []Entry
	appended    map[string]bool
	currentTurn int
}

// NewManager constructs a Manager. summarizer may be nil, in which case
// PrepareForLLM returns ErrBudgetUnsatisfiable instead of summarizing
// once mask+compact aren't enough.
func NewManager(cfg Config, tokenizer Tokenizer, summarizer Summarizer) *Manager {
	store := NewSideStore()
	return &Manager{
		cfg:        cfg,
		tokenizer:  tokenizer,
		summarizer: summarizer,
		sideStore:  store,
		masker:     NewObservationMasker(ObservationMaskerConfig{MaskAfterTurns: cfg.MaskAfterTurns}),
		compactor:  NewContextCompactor(CompactorConfig{ThresholdBytes: cfg.CompactThresholdBytes}, store),
		appended:   make(map[string]bool),
	}
}

// Append records a message and its parts in the managed history,
// advancing the turn counter on every user message. Appending the same
// message id twice is a no-op, so callers can safely re-append the full
// loaded history every turn.
func (m *Manager) Append(msg *types.Message, parts []types.Part) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg == nil || m.appended[msg.ID] {
		return
	}
	m.appended[msg.ID] = true
	if msg.Role == "user" {
		m.currentTurn++
	}
	if m.currentTurn == 0 {
		m.currentTurn = 1
	}
	m.entries = append(m.entries, Entry{Message: msg, Parts: parts, Turn: m.currentTurn})
}

// ResolveReference looks up a compacted payload by reference id.
func (m *Manager) ResolveReference(id ContentID) (string, bool) {
	return m.sideStore.Get(id)
}

// Usage returns totals and a per-turn token breakdown over the full
// appended history (not the budget-bounded view PrepareForLLM returns).
func (m *Manager) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := Usage{PerTurn: make(map[int]int)}
	for _, e := range m.entries {
		t := tokensOf(m.tokenizer, []Entry{e})
		u.TotalTokens += t
		u.PerTurn[e.Turn] += t
	}
	return u
}

// PrepareForLLM returns a bounded view of the history for budget: mask
// observations beyond the protected window; if still over budget,
// compact remaining oversized tool results into side-store references;
// if still over budget, summarize the oldest unprotected span via the
// injected Summarizer and replace it with a single summary message (an
// assistant-role message with IsSummary set; no system-role message is
// produced). The most recent PreserveLastNTurns turns are never touched
// by any stage.
func (m *Manager) PrepareForLLM(ctx gocontext.Context, budget int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := cloneEntries(m.entries)
	protectedFromTurn := m.currentTurn - m.cfg.PreserveLastNTurns + 1
	if protectedFromTurn < 1 {
		protectedFromTurn = 1
	}

	if budget <= 0 || tokensOf(m.tokenizer, working) <= budget {
		return working, nil
	}

	m.masker.Mask(working, m.currentTurn, protectedFromTurn)
	if tokensOf(m.tokenizer, working) <= budget {
		return working, nil
	}

	m.compactor.Compact(working, protectedFromTurn)
	if tokensOf(m.tokenizer, working) <= budget {
		return working, nil
	}

	if m.summarizer == nil {
		return working, ErrBudgetUnsatisfiable
	}

	var span, rest []Entry
	for _, e := range working {
		if e.Turn < protectedFromTurn {
			span = append(span, e)
		} else {
			rest = append(rest, e)
		}
	}
	if len(span) == 0 {
		return working, ErrBudgetUnsatisfiable
	}

	result, err := m.summarizer.Summarize(ctx, span)
	if err != nil {
		return working, fmt.Errorf("context: summarize failed: %w", err)
	}

	sessionID := ""
	if len(span) > 0 && span[0].Message != nil {
		sessionID = span[0].Message.SessionID
	}
	summaryMsgID := ulid.Make().String()
	summaryMsg := &types.Message{
		ID:        summaryMsgID,
		SessionID: sessionID,
		Role:      "assistant",
		IsSummary: true,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	summaryPart := &types.TextPart{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		MessageID: summaryMsgID,
		Type:      "text",
		Text:      formatSummary(result),
	}

	prepared := append([]Entry{{Message: summaryMsg, Parts: []types.Part{summaryPart}, Turn: span[0].Turn}}, rest...)
	if tokensOf(m.tokenizer, prepared) <= budget {
		return prepared, nil
	}
	return prepared, ErrBudgetUnsatisfiable
}

func formatSummary(r SummarizationResult) string {
	if r.Text != "" {
		return r.Text
	}
	var b strings.Builder
	b.WriteString("Conversation summary:\n")
	for _, f := range r.Summary.Facts {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if len(r.Summary.FileReferences) > 0 {
		fmt.Fprintf(&b, "Files: %s\n", strings.Join(r.Summary.FileReferences, ", "))
	}
	if len(r.Summary.Decisions) > 0 {
		fmt.Fprintf(&b, "Decisions: %s\n", strings.Join(r.Summary.Decisions, "; "))
	}
	for tool, count := range r.Summary.ToolUsageCounts {
		fmt.Fprintf(&b, "Tool %s used %d time(s)\n", tool, count)
	}
	return b.String()
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		parts := make([]types.Part, len(e.Parts))
		for j, p := range e.Parts {
			parts[j] = clonePart(p)
		}
		out[i] = Entry{Message: e.Message, Parts: parts, Turn: e.Turn}
	}
	return out
}

func clonePart(p types.Part) types.Part {
	switch v := p.(type) {
	case *types.ToolPart:
		clone := *v
		return &clone
	case *types.TextPart:
		clone := *v
		return &clone
	default:
		return p
	}
}

func tokensOf(tok Tokenizer, entries []Entry) int {
	var texts []string
	for _, e := range entries {
		for _, p := range e.Parts {
			switch v := p.(type) {
			case *types.TextPart:
				texts = append(texts, v.Text)
			case *types.ToolPart:
				texts = append(texts, v.State.Output, v.State.Error)
			}
		}
	}
	return tok.CountMessages(texts)
}
