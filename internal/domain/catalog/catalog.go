// Package catalog provides read models for the externally managed tool,
// user, and scope records this core consumes. The catalog itself is plain
// CRUD owned elsewhere; runs and workflows only read it, except for the
// manifest-driven tool seeding at startup.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/scope"
)

var (
	// ErrToolNotFound is returned when a tool cannot be located by ID or slug.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolDisabled is returned when a run is submitted against a tool that
	// has been switched off in the catalog.
	ErrToolDisabled = errors.New("tool is disabled")

	// ErrToolMissingManifest is returned when a run is submitted against a
	// tool that carries no execution manifest.
	ErrToolMissingManifest = errors.New("tool has no execution manifest")

	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")

	// ErrScopeNotFound is returned when a scope cannot be located.
	ErrScopeNotFound = errors.New("scope not found")
)

// Role labels a user's privilege level.
type Role string

const (
	// RoleUser is the default role; scope authorization applies in full.
	RoleUser Role = "user"

	// RoleAdmin bypasses scope authorization entirely.
	RoleAdmin Role = "admin"
)

// String returns the string representation of the Role.
func (r Role) String() string { return string(r) }

// ParseRole converts a string to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	if s == "admin" {
		return RoleAdmin
	}
	return RoleUser
}

// Elevated reports whether the role bypasses target authorization.
func (r Role) Elevated() bool { return r == RoleAdmin }

// ToolManifest carries the execution defaults a tool ships with. A tool
// without a manifest cannot be run.
type ToolManifest struct {
	DefaultParams  json.RawMessage `yaml:"default_params" json:"default_params"`
	DefaultTimeout time.Duration   `yaml:"default_timeout" json:"default_timeout"`
}

// Tool is the read model of one runnable tool in the catalog.
type Tool struct {
	id       uuid.UUID
	name     string
	slug     string
	enabled  bool
	manifest *ToolManifest
}

// NewTool creates a Tool for manifest-driven seeding.
func NewTool(name, slug string, enabled bool, manifest *ToolManifest) *Tool {
	return &Tool{
		id:       uuid.New(),
		name:     name,
		slug:     slug,
		enabled:  enabled,
		manifest: manifest,
	}
}

// ReconstructTool creates a Tool instance from persisted data.
// This should only be used by repositories when reconstructing from storage.
func ReconstructTool(id uuid.UUID, name, slug string, enabled bool, manifest *ToolManifest) *Tool {
	return &Tool{
		id:       id,
		name:     name,
		slug:     slug,
		enabled:  enabled,
		manifest: manifest,
	}
}

// ToolID returns the unique identifier for this tool.
func (t *Tool) ToolID() uuid.UUID { return t.id }

// Name returns the display name of the tool.
func (t *Tool) Name() string { return t.name }

// Slug returns the URL-safe short name callers may reference instead of the ID.
func (t *Tool) Slug() string { return t.slug }

// Enabled reports whether the tool accepts new runs.
func (t *Tool) Enabled() bool { return t.enabled }

// Manifest returns the tool's execution defaults, nil when the tool ships none.
func (t *Tool) Manifest() *ToolManifest { return t.manifest }

// User is the read model of one caller identity.
type User struct {
	id       uuid.UUID
	username string
	role     Role
}

// ReconstructUser creates a User instance from persisted data.
// This should only be used by repositories when reconstructing from storage.
func ReconstructUser(id uuid.UUID, username string, role Role) *User {
	return &User{
		id:       id,
		username: username,
		role:     role,
	}
}

// UserID returns the unique identifier for this user.
func (u *User) UserID() uuid.UUID { return u.id }

// Username returns the user's login name.
func (u *User) Username() string { return u.username }

// Role returns the user's privilege level.
func (u *User) Role() Role { return u.role }

// ToolRepository defines the read and seed operations for the tool catalog.
type ToolRepository interface {
	// GetTool retrieves a tool by ID.
	// It returns ErrToolNotFound if no tool exists with the given ID.
	GetTool(ctx context.Context, toolID uuid.UUID) (*Tool, error)

	// GetToolBySlug retrieves a tool by its slug.
	// It returns ErrToolNotFound if no tool exists with the given slug.
	GetToolBySlug(ctx context.Context, slug string) (*Tool, error)

	// UpsertTool writes a tool record keyed by slug, used by manifest seeding.
	UpsertTool(ctx context.Context, tool *Tool) error

	// ListTools retrieves every tool in the catalog.
	ListTools(ctx context.Context) ([]*Tool, error)
}

// UserRepository defines the read operations for caller identities.
type UserRepository interface {
	// GetUser retrieves a user by ID.
	// It returns ErrUserNotFound if no user exists with the given ID.
	GetUser(ctx context.Context, userID uuid.UUID) (*User, error)
}

// ScopeRepository defines the read operations for authorization scopes.
type ScopeRepository interface {
	// GetScope retrieves a scope by ID.
	// It returns ErrScopeNotFound if no scope exists with the given ID.
	GetScope(ctx context.Context, scopeID uuid.UUID) (*scope.Scope, error)
}
