// Package sandbox manages one containerized workspace per session: a
// long-lived named Docker container holding the session's files, started
// and torn down through the docker CLI rather than a client SDK.
package sandbox

import (
	"path/filepath"
	"strings"
	"time"
)

// WorkspaceAccessMode controls how much of the container's workspace mount
// a role agent's tools may touch.
type WorkspaceAccessMode int

const (
	WorkspaceReadOnly WorkspaceAccessMode = iota
	WorkspaceReadWrite
	WorkspaceNone
)

// ParseWorkspaceAccess converts a config string to a workspace access mode,
// defaulting to read-only for anything unrecognized.
func ParseWorkspaceAccess(raw string) WorkspaceAccessMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rw", "readwrite", "read-write", "write":
		return WorkspaceReadWrite
	case "none", "disabled":
		return WorkspaceNone
	case "ro", "readonly", "read-only":
		return WorkspaceReadOnly
	default:
		return WorkspaceReadOnly
	}
}

// Config configures the Sandbox Manager.
type Config struct {
	// Image is the container image run for every session.
	Image string
	// BaseDir is the host directory under which per-session workspace
	// directories are created ("<BaseDir>/<session_id>").
	BaseDir string
	// NamePrefix prefixes the canonical container name for a session.
	NamePrefix string
	// CPULimit is passed as --cpus (e.g. "1.0").
	CPULimit string
	// MemoryLimit is passed as --memory (e.g. "512m").
	MemoryLimit string
	// MemorySwapLimit is passed as --memory-swap. Empty disables the flag.
	MemorySwapLimit string
	// PIDsLimit is passed as --pids-limit. Zero disables the flag.
	PIDsLimit int
	// NofileUlimit is passed as --ulimit nofile=<value>. Zero disables it.
	NofileUlimit int
	// NetworkMode is "none", "default", or a named Docker network.
	NetworkMode string
	// StartCommand keeps the container alive (e.g. "sleep infinity").
	StartCommand []string
	// ExposedPorts are container-side ports to publish to the host.
	ExposedPorts []int
	// HostPortRangeStart/End bound the PortAllocator's range, inclusive.
	HostPortRangeStart int
	HostPortRangeEnd   int
	// ExtraEnv is merged into every container's environment.
	ExtraEnv map[string]string
	// IdleTimeout destroys a container after this much inactivity. Zero
	// disables idle reaping.
	IdleTimeout time.Duration
	// GCInterval is how often the Idle Reaper checks for idle containers.
	GCInterval time.Duration
	// PreviewHostURL is the base URL used to build per-port preview links
	// (e.g. "http://localhost").
	PreviewHostURL string
	// Access controls workspace tool permissions; it does not affect the
	// container mount itself, which is always read-write from the
	// container's perspective.
	Access WorkspaceAccessMode
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// sane defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.Image == "" {
		cfg.Image = "codeteam-sandbox:latest"
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "./sandbox-workspaces"
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "codeteam-session-"
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "1.0"
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "512m"
	}
	if cfg.NetworkMode == "" {
		cfg.NetworkMode = "none"
	}
	if len(cfg.StartCommand) == 0 {
		cfg.StartCommand = []string{"sleep", "infinity"}
	}
	if cfg.HostPortRangeStart == 0 && cfg.HostPortRangeEnd == 0 {
		cfg.HostPortRangeStart, cfg.HostPortRangeEnd = 41000, 41999
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 30 * time.Second
	}
	if cfg.PreviewHostURL == "" {
		cfg.PreviewHostURL = "http://localhost"
	}
	return cfg
}

// ContainerName returns the canonical container name for a session.
func (cfg Config) ContainerName(sessionID string) string {
	return cfg.NamePrefix + sessionID
}

// WorkspacePath returns the host directory holding a session's files.
func (cfg Config) WorkspacePath(sessionID string) string {
	return filepath.Join(cfg.BaseDir, sessionID)
}
