package session

import (
	"context"
	"fmt"

	"github.com/forgecode-ai/forgecode/internal/hook"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// runPromptSubmitHook runs every configured PromptSubmit hook against the
// triggering user message's text content. A Block result aborts the turn
// before any provider call is made; a Replace result rewrites the
// message's text part in storage so the replacement is what actually
// reaches the model.
func (p *Processor) runPromptSubmitHook(ctx context.Context, sessionID string, msg *types.Message) error {
	if p.hooks == nil {
		return nil
	}

	parts, err := p.loadParts(ctx, msg.ID)
	if err != nil {
		return nil
	}

	var textPart *types.TextPart
	var prompt string
	for _, part := range parts {
		if tp, ok := part.(*types.TextPart); ok {
			textPart = tp
			prompt += tp.Text
		}
	}

	result, err := p.hooks.Run(ctx, hook.PromptSubmit, hook.Payload{SessionID: sessionID, Prompt: prompt})
	if err != nil {
		return fmt.Errorf("prompt submit hook: %w", err)
	}

	switch result.Decision {
	case hook.Block:
		return fmt.Errorf("prompt blocked by hook: %s", result.Reason)
	case hook.Replace:
		if textPart != nil {
			textPart.Text = result.Payload
			return p.savePart(ctx, msg.ID, textPart)
		}
	}
	return nil
}

// runPreToolUseHook runs every configured PreToolUse hook for a tool call
// about to execute. A Block result prevents execution; a Replace result
// substitutes the tool's output without running it.
func (p *Processor) runPreToolUseHook(ctx context.Context, sessionID string, toolPart *types.ToolPart) (hook.Result, error) {
	if p.hooks == nil {
		return hook.Result{Decision: hook.Continue}, nil
	}
	return p.hooks.Run(ctx, hook.PreToolUse, hook.Payload{
		SessionID: sessionID,
		ToolName:  toolPart.Tool,
		ToolInput: toolPart.State.Input,
	})
}

// runPostToolUseHook runs every configured PostToolUse hook after a tool
// call completes, with its output available for inspection or override.
func (p *Processor) runPostToolUseHook(ctx context.Context, sessionID string, toolPart *types.ToolPart) (hook.Result, error) {
	if p.hooks == nil {
		return hook.Result{Decision: hook.Continue}, nil
	}
	return p.hooks.Run(ctx, hook.PostToolUse, hook.Payload{
		SessionID:  sessionID,
		ToolName:   toolPart.Tool,
		ToolOutput: toolPart.State.Output,
	})
}
