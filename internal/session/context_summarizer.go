package session

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	ctxmgr "github.com/forgecode-ai/forgecode/internal/context"
	"github.com/forgecode-ai/forgecode/internal/provider"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// llmSummarizer adapts the provider gateway to ctxmgr.Summarizer, so the
// Context Manager's last-resort summarization stage can condense an
// already-loaded span of entries without reloading parts from storage
// (unlike buildSummaryPrompt in compact.go, which is driven off storage
// scans for the explicit /compact command).
type llmSummarizer struct {
	processor *Processor
}

func (s *llmSummarizer) Summarize(ctx context.Context, entries []ctxmgr.Entry) (ctxmgr.SummarizationResult, error) {
	model, err := s.processor.providerRegistry.DefaultModel()
	if err != nil {
		return ctxmgr.SummarizationResult{}, fmt.Errorf("context summarizer: %w", err)
	}
	prov, err := s.processor.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return ctxmgr.SummarizationResult{}, fmt.Errorf("context summarizer: %w", err)
	}

	prompt := buildSummaryPromptFromEntries(entries)

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: compactionSystemPrompt},
			{Role: schema.User, Content: prompt},
		},
		MaxTokens: DefaultCompactionConfig.SummaryMaxTokens,
	})
	if err != nil {
		return ctxmgr.SummarizationResult{}, fmt.Errorf("context summarizer: completion failed: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ctxmgr.SummarizationResult{}, fmt.Errorf("context summarizer: stream failed: %w", err)
		}
		text.WriteString(msg.Content)
	}

	return ctxmgr.SummarizationResult{
		Summary: ctxmgr.SummaryContent{
			ToolUsageCounts: toolUsageCounts(entries),
			FileReferences:  fileReferences(entries),
		},
		Text: text.String(),
	}, nil
}

// buildSummaryPromptFromEntries renders already-loaded entries into the
// same instructional shape buildSummaryPrompt uses, but without a
// storage round trip per message.
func buildSummaryPromptFromEntries(entries []ctxmgr.Entry) string {
	var prompt strings.Builder
	prompt.WriteString("Please summarize the following conversation, focusing on:\n")
	prompt.WriteString("1. Key decisions and outcomes\n")
	prompt.WriteString("2. Files that were modified\n")
	prompt.WriteString("3. Important context for continuing the work\n\n")
	prompt.WriteString("---\n\n")

	for _, e := range entries {
		if e.Message.Role == "user" {
			prompt.WriteString("USER:\n")
		} else {
			prompt.WriteString("ASSISTANT:\n")
		}
		for _, part := range e.Parts {
			switch pt := part.(type) {
			case *types.TextPart:
				prompt.WriteString(pt.Text)
				prompt.WriteString("\n")
			case *types.ToolPart:
				fmt.Fprintf(&prompt, "[Tool: %s]\n", pt.Tool)
				if pt.State.Output != "" {
					output := pt.State.Output
					if len(output) > 500 {
						output = output[:500] + "..."
					}
					prompt.WriteString(output)
					prompt.WriteString("\n")
				}
			}
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n\nSummarize our conversation above. This summary will be the only context available for the span it replaces, so preserve critical information including: what was accomplished, current work in progress, files involved, next steps, and any key user requests or constraints. Be concise but detailed enough that work can continue seamlessly.")
	return prompt.String()
}

func toolUsageCounts(entries []ctxmgr.Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		for _, part := range e.Parts {
			if tp, ok := part.(*types.ToolPart); ok {
				counts[tp.Tool]++
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

func fileReferences(entries []ctxmgr.Entry) []string {
	seen := make(map[string]bool)
	var files []string
	for _, e := range entries {
		for _, part := range e.Parts {
			tp, ok := part.(*types.ToolPart)
			if !ok {
				continue
			}
			if path, ok := tp.State.Input["file_path"].(string); ok && path != "" && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}
	return files
}
