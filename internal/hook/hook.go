// Package hook implements lifecycle hooks: user-configured actions that
// run around tool execution and session boundaries, able to block or
// rewrite what happens next. Grounded on the loading conventions of
// internal/command's markdown/frontmatter command executor, generalized
// from "produce a prompt" to "observe an event and decide Continue, Block,
// or Replace".
package hook

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Event names a point in the session/tool lifecycle a hook can attach to.
type Event string

const (
	PreToolUse    Event = "PreToolUse"
	PostToolUse   Event = "PostToolUse"
	SessionStart  Event = "SessionStart"
	SessionStop   Event = "SessionStop"
	PromptSubmit  Event = "PromptSubmit"
)

// Payload carries the context a hook evaluates against and, for Replace
// results, what to substitute.
type Payload struct {
	SessionID   string
	ToolName    string         // set for PreToolUse/PostToolUse
	ToolInput   map[string]any // set for PreToolUse
	ToolOutput  string         // set for PostToolUse
	Prompt      string         // set for PromptSubmit
}

// Decision is a hook action's verdict.
type Decision string

const (
	Continue Decision = "continue"
	Block    Decision = "block"
	Replace  Decision = "replace"
)

// Result is what running one hook entry produces.
type Result struct {
	Decision Decision
	Reason   string // set when Decision == Block
	Payload  string // set when Decision == Replace: the substituted content
}

// PromptRunner re-enters the provider gateway with a fixed system prompt,
// returning the model's text response. Implemented by internal/session to
// avoid a hook -> session import cycle.
type PromptRunner func(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error)

// SubagentRunner delegates to a named subagent, returning its output.
// Implemented by internal/executor.SubagentExecutor.RunSubagent.
type SubagentRunner func(ctx context.Context, sessionID, agentName, prompt string) (string, error)

// Entry is one configured hook: a matcher plus exactly one action.
type Entry struct {
	Event     Event
	Matcher   string // glob against Payload.ToolName; empty matches everything
	Command   []string
	Prompt    string
	Subagent  string
	Timeout   time.Duration
	OnTimeout Decision // Continue or Block; default Continue
}

// Registry holds the configured hooks for a session, grouped by event.
type Registry struct {
	entries map[Event][]Entry
	runPrompt   PromptRunner
	runSubagent SubagentRunner
}

// NewRegistry builds a Registry from config-declared hook entries.
func NewRegistry(cfg map[string][]types.HookConfig, runPrompt PromptRunner, runSubagent SubagentRunner) *Registry {
	r := &Registry{
		entries:     make(map[Event][]Entry),
		runPrompt:   runPrompt,
		runSubagent: runSubagent,
	}
	for eventName, hooks := range cfg {
		ev := Event(eventName)
		for _, h := range hooks {
			entry := Entry{
				Event:    ev,
				Matcher:  h.Matcher,
				Command:  h.Command,
				Prompt:   h.Prompt,
				Subagent: h.Subagent,
				Timeout:  time.Duration(h.TimeoutMs) * time.Millisecond,
			}
			if h.OnTimeout == "block" {
				entry.OnTimeout = Block
			} else {
				entry.OnTimeout = Continue
			}
			if entry.Timeout <= 0 {
				entry.Timeout = 30 * time.Second
			}
			r.entries[ev] = append(r.entries[ev], entry)
		}
	}
	return r
}

// Run executes every hook registered for event whose matcher accepts
// payload.ToolName, in declaration order, stopping at the first Block or
// Replace. Continue means every matching hook ran and none intervened.
func (r *Registry) Run(ctx context.Context, event Event, payload Payload) (Result, error) {
	for _, entry := range r.entries[event] {
		if entry.Matcher != "" && payload.ToolName != "" {
			matched, err := doublestar.Match(entry.Matcher, payload.ToolName)
			if err != nil || !matched {
				continue
			}
		}

		result, err := r.runOne(ctx, entry, payload)
		if err != nil {
			return Result{}, fmt.Errorf("hook: %s: %w", event, err)
		}
		if result.Decision != Continue {
			return result, nil
		}
	}
	return Result{Decision: Continue}, nil
}

func (r *Registry) runOne(ctx context.Context, entry Entry, payload Payload) (Result, error) {
	hookCtx, cancel := context.WithTimeout(ctx, entry.Timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		switch {
		case len(entry.Command) > 0:
			done <- outcome{result: r.runCommand(hookCtx, entry, payload)}
		case entry.Prompt != "" && r.runPrompt != nil:
			out, err := r.runPrompt(hookCtx, payload.SessionID, entry.Prompt, payload.Prompt)
			if err != nil {
				done <- outcome{err: err}
				return
			}
			done <- outcome{result: Result{Decision: Continue, Payload: out}}
		case entry.Subagent != "" && r.runSubagent != nil:
			out, err := r.runSubagent(hookCtx, payload.SessionID, entry.Subagent, payload.Prompt)
			if err != nil {
				done <- outcome{err: err}
				return
			}
			done <- outcome{result: Result{Decision: Continue, Payload: out}}
		default:
			done <- outcome{result: Result{Decision: Continue}}
		}
	}()

	select {
	case <-hookCtx.Done():
		return Result{Decision: entry.OnTimeout, Reason: "hook timed out"}, nil
	case o := <-done:
		return o.result, o.err
	}
}

// runCommand runs entry.Command via os/exec, matching the teacher's
// command-executor process-spawning style. Exit code 0 is Continue; any
// non-zero exit is Block with stderr as the reason; stdout starting with
// "REPLACE:" substitutes the remainder as Payload.
func (r *Registry) runCommand(ctx context.Context, entry Entry, payload Payload) Result {
	cmd := exec.CommandContext(ctx, entry.Command[0], entry.Command[1:]...)
	cmd.Env = append(cmd.Env,
		"FORGECODE_HOOK_EVENT="+string(entry.Event),
		"FORGECODE_HOOK_TOOL="+payload.ToolName,
		"FORGECODE_HOOK_SESSION="+payload.SessionID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return Result{Decision: entry.OnTimeout, Reason: "hook command timed out"}
		}
		return Result{Decision: Block, Reason: stderr.String()}
	}

	out := stdout.String()
	const replacePrefix = "REPLACE:"
	if len(out) >= len(replacePrefix) && out[:len(replacePrefix)] == replacePrefix {
		return Result{Decision: Replace, Payload: out[len(replacePrefix):]}
	}
	return Result{Decision: Continue}
}
