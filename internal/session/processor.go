package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	ctxmgr "github.com/forgecode-ai/forgecode/internal/context"
	"github.com/forgecode-ai/forgecode/internal/hook"
	"github.com/forgecode-ai/forgecode/internal/permission"
	"github.com/forgecode-ai/forgecode/internal/provider"
	"github.com/forgecode-ai/forgecode/internal/storage"
	"github.com/forgecode-ai/forgecode/internal/tool"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Processor handles message processing and the agentic loop.
type Processor struct {
	mu sync.Mutex

	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	storage           *storage.Storage
	permissionChecker *permission.Checker
	hooks             *hook.Registry

	// Default provider and model to use when not specified
	defaultProviderID string
	defaultModelID    string

	// Active sessions being processed
	sessions map[string]*sessionState

	// contextManagers holds one budget manager per session, created
	// lazily the first time a session's history is prepared for the LLM.
	contextManagers sync.Map // sessionID -> *ctxmgr.Manager

	// contextConfig overrides ctxmgr.DefaultConfig() when set via
	// SetContextConfig, e.g. from the project's context.* config keys.
	contextConfig *types.ContextConfig
}

// SetContextConfig overrides the context budget manager's tuning for
// every session subsequently created by this processor.
func (p *Processor) SetContextConfig(cfg *types.ContextConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contextConfig = cfg
}

// sessionState tracks the state of an active session being processed.
type sessionState struct {
	ctx      context.Context
	cancel   context.CancelFunc
	message  *types.Message
	parts    []types.Part
	waiters  []chan error
	step     int
	retries  int
}

// ProcessCallback is called with message updates during processing.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// NewProcessor creates a new session processor.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *storage.Storage,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	// Use reasonable defaults if not specified
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	return &Processor{
		providerRegistry:  providerReg,
		toolRegistry:      toolReg,
		storage:           store,
		permissionChecker: permChecker,
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
		sessions:          make(map[string]*sessionState),
	}
}

// SetHooks attaches a hook registry to the processor. Hooks run around
// tool execution and prompt submission once set; a processor with no
// hooks attached behaves exactly as before (every hook call site no-ops
// on a nil registry).
func (p *Processor) SetHooks(h *hook.Registry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = h
}

// RunPrompt satisfies hook.PromptRunner: it re-enters the provider
// gateway with a fixed system prompt and a one-shot user prompt, outside
// of any session's persisted message history, and returns the model's
// text response. Used by hook actions of type "prompt".
func (p *Processor) RunPrompt(ctx context.Context, sessionID, systemPrompt, userPrompt string) (string, error) {
	_, err := p.providerRegistry.Get(p.defaultProviderID)
	if err != nil {
		return "", fmt.Errorf("hook prompt: provider not found: %w", err)
	}
	model, err := p.providerRegistry.GetModel(p.defaultProviderID, p.defaultModelID)
	if err != nil {
		return "", fmt.Errorf("hook prompt: model not found: %w", err)
	}
	prov, err := p.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return "", fmt.Errorf("hook prompt: provider not found: %w", err)
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: systemPrompt},
			{Role: schema.User, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("hook prompt: completion failed: %w", err)
	}
	defer stream.Close()

	var out strings.Builder
	for {
		msg, err := stream.Recv()
		if err != nil {
			break
		}
		out.WriteString(msg.Content)
	}
	return out.String(), nil
}

// Process handles a new user message and generates an assistant response.
// This is the main entry point for the agentic loop.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()

	// Check if session is already processing
	if state, ok := p.sessions[sessionID]; ok {
		// Queue this request
		waiter := make(chan error, 1)
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		// Wait for current processing to complete
		select {
		case err := <-waiter:
			if err != nil {
				return err
			}
			// Retry processing
			return p.Process(ctx, sessionID, agent, callback)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Create new session state
	loopCtx, cancel := context.WithCancel(ctx)
	state := &sessionState{
		ctx:    loopCtx,
		cancel: cancel,
	}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	// Ensure cleanup
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sessionID)

		// Notify waiters
		for _, waiter := range state.waiters {
			waiter <- nil
		}
		p.mu.Unlock()
	}()

	// Run the agentic loop
	return p.runLoop(loopCtx, sessionID, state, agent, callback)
}

// Abort cancels processing for a session.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	state.cancel()
	return nil
}

// IsProcessing returns whether a session is currently processing.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// contextManagerFor returns the session's context budget manager,
// creating it on first use. Each session gets its own Manager since
// turn tracking and the side-store of compacted content are per-history.
func (p *Processor) contextManagerFor(sessionID string) *ctxmgr.Manager {
	if m, ok := p.contextManagers.Load(sessionID); ok {
		return m.(*ctxmgr.Manager)
	}
	cfg := ctxmgr.DefaultConfig()
	cfg.MaxContextTokens = MaxContextTokens
	p.mu.Lock()
	override := p.contextConfig
	p.mu.Unlock()
	if override != nil {
		if override.MaxTokens > 0 {
			cfg.MaxContextTokens = override.MaxTokens
		}
		if override.MaskAfterTurns > 0 {
			cfg.MaskAfterTurns = override.MaskAfterTurns
		}
		if override.CompactThresholdBytes > 0 {
			cfg.CompactThresholdBytes = override.CompactThresholdBytes
		}
		if override.SummarizeThresholdRatio > 0 {
			cfg.SummarizeThresholdRatio = override.SummarizeThresholdRatio
		}
		if override.PreserveLastNTurns > 0 {
			cfg.PreserveLastNTurns = override.PreserveLastNTurns
		}
	}
	m := ctxmgr.NewManager(cfg, ctxmgr.EstimateTokenizer{}, &llmSummarizer{processor: p})
	actual, _ := p.contextManagers.LoadOrStore(sessionID, m)
	return actual.(*ctxmgr.Manager)
}

// GetActiveState returns the current state for a processing session.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}

	return state.message, state.parts, true
}
