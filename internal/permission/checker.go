package permission

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/forgecode-ai/forgecode/internal/audit"
	"github.com/forgecode-ai/forgecode/internal/event"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Checker handles permission checks and approvals.
type Checker struct {
	mu       sync.RWMutex
	approved map[string]map[PermissionType]bool   // sessionID -> type -> approved
	patterns map[string]map[string]bool           // sessionID -> pattern -> approved (for bash patterns)
	pending  map[string]chan Response             // requestID -> response channel

	registry *Registry             // definitions; nil falls back to action-only checks
	grants   *GrantStore           // project/global persisted grants; nil disables those tiers
	session  map[string]map[string]bool // sessionID -> permission name -> allowed (session-scope grants)
}

// NewChecker creates a new permission checker with no registry or
// persisted grant store; Check/Ask behave exactly as before. Use
// NewCheckerWithRegistry to enable the three-tier (session/project/global)
// resolution and risk-based command classification.
func NewChecker() *Checker {
	return &Checker{
		approved: make(map[string]map[PermissionType]bool),
		patterns: make(map[string]map[string]bool),
		pending:  make(map[string]chan Response),
		session:  make(map[string]map[string]bool),
	}
}

// NewCheckerWithRegistry creates a Checker wired to a definition Registry
// and a persisted GrantStore, enabling CheckCommand's risk-based
// resolution across session, project, and global scopes.
func NewCheckerWithRegistry(reg *Registry, grants *GrantStore) *Checker {
	c := NewChecker()
	c.registry = reg
	c.grants = grants
	return c
}

// CheckCommand classifies a raw shell command, resolves the matching
// permission definition against the session/project/global grant chain,
// and returns a RejectedError if the resolution is Deny or the command is
// Forbidden outright. A nil return means the command may run, possibly
// after this call recorded a fresh Ask interaction.
func (c *Checker) CheckCommand(ctx context.Context, req Request, raw string) error {
	start := time.Now()
	risk := ClassifyPipeline(raw)
	if risk == RiskForbidden {
		audit.Record(types.AuditEntry{
			Action:   "command.execute",
			Subject:  raw,
			Result:   types.AuditBlocked,
			Risk:     int(risk),
			Duration: time.Since(start),
		})
		return &RejectedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   "command matches a forbidden pattern and cannot be run",
		}
	}

	name := permissionNameForRisk(risk)
	if c.grants != nil {
		sess := c.sessionGrants(req.SessionID)
		if allowed, _, found := c.grants.Resolve(ctx, name, sess); found {
			if !allowed {
				audit.Record(types.AuditEntry{
					Action:   "command.execute",
					Subject:  raw,
					Result:   types.AuditBlocked,
					Risk:     int(risk),
					Duration: time.Since(start),
				})
				return &RejectedError{
					SessionID: req.SessionID,
					Type:      req.Type,
					CallID:    req.CallID,
					Metadata:  req.Metadata,
					Message:   "permission denied by prior grant decision for " + name,
				}
			}
			return nil
		}
	}

	// No standing grant: definitions below the confirmation threshold are
	// allowed to proceed silently; everything else falls through to Ask.
	if c.registry != nil {
		if def, ok := c.registry.Get(name); ok && !def.RequiresConfirmation {
			return nil
		}
	}

	return c.Ask(ctx, req)
}

func (c *Checker) sessionGrants(sessionID string) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.session[sessionID]
	if !ok {
		g = make(map[string]bool)
		c.session[sessionID] = g
	}
	return g
}

func permissionNameForRisk(r RiskLevel) string {
	switch r {
	case RiskForbidden:
		return "shell.execute.forbidden"
	case RiskDangerous:
		return "shell.execute.dangerous"
	case RiskCaution:
		return "shell.execute.caution"
	default:
		return "shell.execute.safe"
	}
}

// Check performs a permission check based on action configuration.
func (c *Checker) Check(ctx context.Context, req Request, action PermissionAction) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		audit.Record(types.AuditEntry{
			Action:  "permission.check",
			Subject: string(req.Type),
			Result:  types.AuditBlocked,
		})
		return &RejectedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   "Permission denied by configuration",
		}
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return nil
}

// Ask prompts the user for permission.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	// Check if already approved for this session and type
	c.mu.RLock()
	if sessionApprovals, ok := c.approved[req.SessionID]; ok {
		if sessionApprovals[req.Type] {
			c.mu.RUnlock()
			return nil
		}
	}

	// Check if every requested pattern is approved
	if len(req.Pattern) > 0 {
		if sessionPatterns, ok := c.patterns[req.SessionID]; ok {
			allApproved := true
			for _, p := range req.Pattern {
				if !sessionPatterns[p] {
					allApproved = false
					break
				}
			}
			if allApproved {
				c.mu.RUnlock()
				return nil
			}
		}
	}
	c.mu.RUnlock()

	// Generate request ID if not set
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	// Create response channel
	respChan := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	// Publish permission request event
	event.Publish(event.Event{
		Type: event.PermissionUpdated,
		Data: event.PermissionRequiredData{
			ID:             req.ID,
			SessionID:      req.SessionID,
			PermissionType: string(req.Type),
			Pattern:        req.Pattern,
			Title:          req.Title,
		},
	})

	// Wait for response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respChan:
		switch resp.Action {
		case "once":
			return nil
		case "always":
			c.approve(req.SessionID, req.Type, req.Pattern)
			return nil
		case "reject":
			audit.Record(types.AuditEntry{
				Action:  "permission.ask",
				Subject: string(req.Type),
				Result:  types.AuditBlocked,
			})
			return &RejectedError{
				SessionID: req.SessionID,
				Type:      req.Type,
				CallID:    req.CallID,
				Metadata:  req.Metadata,
				Message:   "Permission rejected by user",
			}
		}
	}
	return nil
}

// Respond handles a user's response to a permission request.
func (c *Checker) Respond(requestID string, action string) {
	c.mu.RLock()
	ch, ok := c.pending[requestID]
	c.mu.RUnlock()

	if ok {
		ch <- Response{
			RequestID: requestID,
			Action:    action,
		}
	}

	// Publish resolved event
	event.Publish(event.Event{
		Type: event.PermissionReplied,
		Data: event.PermissionResolvedData{
			ID:      requestID,
			Granted: action != "reject",
		},
	})
}

// approve marks a permission type and patterns as approved for a session.
func (c *Checker) approve(sessionID string, permType PermissionType, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Approve the permission type
	if c.approved[sessionID] == nil {
		c.approved[sessionID] = make(map[PermissionType]bool)
	}
	c.approved[sessionID][permType] = true

	// Approve individual patterns
	if len(patterns) > 0 {
		if c.patterns[sessionID] == nil {
			c.patterns[sessionID] = make(map[string]bool)
		}
		for _, p := range patterns {
			c.patterns[sessionID][p] = true
		}
	}
}

// IsApproved checks if a permission type is already approved.
func (c *Checker) IsApproved(sessionID string, permType PermissionType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sessionApprovals, ok := c.approved[sessionID]; ok {
		return sessionApprovals[permType]
	}
	return false
}

// IsPatternApproved checks if a specific pattern is approved.
func (c *Checker) IsPatternApproved(sessionID string, pattern string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sessionPatterns, ok := c.patterns[sessionID]; ok {
		return sessionPatterns[pattern]
	}
	return false
}

// ClearSession clears all approvals for a session.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, sessionID)
	delete(c.patterns, sessionID)
}

// ApprovePattern explicitly approves a pattern for a session.
func (c *Checker) ApprovePattern(sessionID string, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.patterns[sessionID] == nil {
		c.patterns[sessionID] = make(map[string]bool)
	}
	c.patterns[sessionID][pattern] = true
}
