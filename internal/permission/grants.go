package permission

import (
	"context"

	"github.com/forgecode-ai/forgecode/internal/audit"
	"github.com/forgecode-ai/forgecode/internal/storage"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Scope is a grant's lifetime and visibility tier. Resolution always
// checks Session first, then Project, then Global, returning the first
// scope that has an explicit grant for the permission name.
type Scope string

const (
	ScopeOnce    Scope = "once" // not persisted; caller-held for one call
	ScopeSession Scope = "session"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Grant records a user decision for a permission name at a given scope.
type Grant struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

// GrantStore persists Project and Global grants via the key-value storage
// layer; Session grants stay in-memory on the Checker since they never
// outlive the process.
type GrantStore struct {
	kv *storage.Storage
}

// NewGrantStore wraps a key-value Storage as a grant persistence layer.
func NewGrantStore(kv *storage.Storage) *GrantStore {
	return &GrantStore{kv: kv}
}

func (g *GrantStore) path(scope Scope, name string) []string {
	return []string{"permission", "grant", string(scope), name}
}

// Get returns the persisted grant for name at scope, if any.
func (g *GrantStore) Get(ctx context.Context, scope Scope, name string) (Grant, bool) {
	var grant Grant
	if err := g.kv.Get(ctx, g.path(scope, name), &grant); err != nil {
		return Grant{}, false
	}
	return grant, true
}

// Set persists a grant decision for name at scope and records it in the
// audit log, since grant/deny/revoke are the mutators spec'd to always
// be audited regardless of whether the decision they record is itself
// an allow or a deny.
func (g *GrantStore) Set(ctx context.Context, scope Scope, name string, allowed bool) error {
	if err := g.kv.Put(ctx, g.path(scope, name), Grant{Name: name, Allowed: allowed}); err != nil {
		return err
	}
	result := types.AuditSuccess
	if !allowed {
		result = types.AuditBlocked
	}
	audit.Record(types.AuditEntry{
		Action:  "permission.grant",
		Subject: name,
		Result:  result,
		Detail:  map[string]any{"scope": string(scope), "allowed": allowed},
	})
	return nil
}

// Clear removes a persisted grant and records the revocation.
func (g *GrantStore) Clear(ctx context.Context, scope Scope, name string) error {
	if err := g.kv.Delete(ctx, g.path(scope, name)); err != nil {
		return err
	}
	audit.Record(types.AuditEntry{
		Action:  "permission.revoke",
		Subject: name,
		Result:  types.AuditSuccess,
		Detail:  map[string]any{"scope": string(scope)},
	})
	return nil
}

// Resolve walks Session, then Project, then Global, in that fixed order,
// returning the first scope with an explicit decision. sessionGrants holds
// the in-memory session-scope decisions since those never touch storage.
func (g *GrantStore) Resolve(ctx context.Context, name string, sessionGrants map[string]bool) (allowed bool, scope Scope, found bool) {
	if v, ok := sessionGrants[name]; ok {
		return v, ScopeSession, true
	}
	if grant, ok := g.Get(ctx, ScopeProject, name); ok {
		return grant.Allowed, ScopeProject, true
	}
	if grant, ok := g.Get(ctx, ScopeGlobal, name); ok {
		return grant.Allowed, ScopeGlobal, true
	}
	return false, "", false
}
