// Package models provides domain types for the codeteam agent system.
package models

import (
	"time"
)

// SenderKind identifies who or what produced a Message.
type SenderKind string

const (
	SenderUser    SenderKind = "user"
	SenderPlanner SenderKind = "planner"
	SenderAgent   SenderKind = "agent"
	SenderStatus  SenderKind = "status"
)

// Role identifies one of the six closed role-agent kinds.
type Role string

const (
	RolePlanner    Role = "planner"
	RoleProduct    Role = "product"
	RoleArchitect  Role = "architect"
	RoleEngineer   Role = "engineer"
	RoleResearcher Role = "researcher"
	RoleAnalyst    Role = "analyst"
)

// Roles lists the closed, static role enumeration in dispatch order.
var Roles = []Role{RolePlanner, RoleProduct, RoleArchitect, RoleEngineer, RoleResearcher, RoleAnalyst}

// IsKnownRole reports whether name matches a known role, case-insensitively.
func IsKnownRole(name string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == name {
			return r, true
		}
	}
	return "", false
}

// Message is a single entry in a Session's append-only message log.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Sender    SenderKind     `json:"sender"`
	Role      Role           `json:"role,omitempty"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is a conversation thread with an owner and an append-only message log.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSessionTitle returns the placeholder title assigned to a freshly
// created session, before the first user message renames it.
func DefaultSessionTitle(sessionID string) string {
	id := sessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return "Session " + id
}

// ActionLogEntry records one role-agent invocation in a session's bounded
// action log.
type ActionLogEntry struct {
	Role      Role           `json:"role"`
	Action    string         `json:"action"`
	Result    string         `json:"result"` // truncated to <= 400 chars
	Status    string         `json:"status"` // "success" | "failure"
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

const (
	ActionStatusSuccess = "success"
	ActionStatusFailure = "failure"
)

// TodoEntry is one pending work item surfaced by a role agent.
type TodoEntry struct {
	Description string         `json:"description"`
	Owner       Role           `json:"owner"`
	Priority    string         `json:"priority,omitempty"`
	Status      string         `json:"status"` // "pending" | "in-progress" | "done"
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

const (
	TodoStatusPending    = "pending"
	TodoStatusInProgress = "in-progress"
	TodoStatusDone       = "done"
)

// SandboxInstance describes one session's live containerized workspace.
type SandboxInstance struct {
	SessionID     string           `json:"session_id"`
	OwnerID       string           `json:"owner_id"`
	ContainerName string           `json:"container_name"`
	ContainerID   string           `json:"container_id"`
	WorkspacePath string           `json:"workspace_path"`
	PortMap       map[int]int      `json:"port_map"` // container port -> host port
	LastUsed      time.Time        `json:"last_used"`
}

// AgentRunResult is produced by each role-agent invocation.
type AgentRunResult struct {
	Role      Role       `json:"role"`
	Sender    SenderKind `json:"sender"`
	Content   string     `json:"content"`
	MessageID string     `json:"message_id"`
}
