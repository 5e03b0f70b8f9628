package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// ErrSandboxDisabled is returned by every operation when the manager was
// constructed with sandboxing disabled.
var ErrSandboxDisabled = errors.New("sandbox disabled")

// FileChangeHook is invoked for workspace filesystem events observed by a
// session's fsnotify watcher. Implementations must not block.
type FileChangeHook func(sessionID, path, op string)

// Manager owns the lifecycle of one Docker container per session: the
// Sandbox Manager described by the containerized-execution spec. It shells
// out to the docker CLI through a ContainerRuntime rather than linking an
// SDK, mirroring internal/tools/exec's own os/exec-based subprocess style.
type Manager struct {
	cfg     Config
	runtime ContainerRuntime
	meta    *metaStore
	ports   *PortAllocator

	mu        sync.Mutex
	instances map[string]models.SandboxInstance
	watchers  map[string]*watcher

	onFileChange FileChangeHook

	reaperCancel context.CancelFunc
	reaperDone   chan struct{}
}

// NewManager constructs a Sandbox Manager, replaying persisted metadata and
// verifying each entry against the live container runtime.
func NewManager(cfg Config, runtime ContainerRuntime, onFileChange FileChangeHook) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if runtime == nil {
		runtime = NewDockerCLIRuntime()
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox base dir: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		runtime:      runtime,
		meta:         newMetaStore(cfg.BaseDir),
		ports:        NewPortAllocator(cfg.HostPortRangeStart, cfg.HostPortRangeEnd),
		instances:    map[string]models.SandboxInstance{},
		watchers:     map[string]*watcher{},
		onFileChange: onFileChange,
	}

	if err := m.replay(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// replay loads persisted instances and discards any whose container no
// longer exists, reserving their host ports so the allocator doesn't hand
// them out again.
func (m *Manager) replay(ctx context.Context) error {
	saved, err := m.meta.Load()
	if err != nil {
		return err
	}
	live := map[string]models.SandboxInstance{}
	for sessionID, inst := range saved {
		info, found, err := m.runtime.Inspect(ctx, inst.ContainerName)
		if err != nil || !found {
			continue
		}
		inst.ContainerID = info.ContainerID
		live[sessionID] = inst
		for _, hostPort := range inst.PortMap {
			m.ports.Reserve(hostPort)
		}
	}
	m.instances = live
	return m.meta.Save(live)
}

// WorkspaceRoot returns the host directory backing a session's container
// mount, the accessor multiagent.ContextBuilder needs to walk a session's
// files without depending on this package.
func (m *Manager) WorkspaceRoot(sessionID string) string {
	return m.cfg.WorkspacePath(sessionID)
}

// Get returns the in-memory instance for a session, if any.
func (m *Manager) Get(sessionID string) (models.SandboxInstance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[sessionID]
	return inst, ok
}

// EnsureSessionContainer returns a running container for sessionID,
// creating or restarting one as needed.
func (m *Manager) EnsureSessionContainer(ctx context.Context, sessionID, ownerID string) (models.SandboxInstance, error) {
	m.mu.Lock()
	if inst, ok := m.instances[sessionID]; ok {
		inst.LastUsed = time.Now()
		m.instances[sessionID] = inst
		m.mu.Unlock()
		_ = m.persistLocked()
		m.ensureWatcher(sessionID, inst.WorkspacePath)
		return inst, nil
	}
	m.mu.Unlock()

	name := m.cfg.ContainerName(sessionID)
	info, found, err := m.runtime.Inspect(ctx, name)
	if err != nil {
		return models.SandboxInstance{}, fmt.Errorf("inspect sandbox container: %w", err)
	}
	if found {
		if !info.Running {
			if err := m.runtime.Start(ctx, name); err != nil {
				return models.SandboxInstance{}, fmt.Errorf("restart sandbox container: %w", err)
			}
			info, _, err = m.runtime.Inspect(ctx, name)
			if err != nil {
				return models.SandboxInstance{}, fmt.Errorf("inspect restarted sandbox container: %w", err)
			}
		}
		for _, hostPort := range info.PortMap {
			m.ports.Reserve(hostPort)
		}
		inst := models.SandboxInstance{
			SessionID:     sessionID,
			OwnerID:       ownerID,
			ContainerName: name,
			ContainerID:   info.ContainerID,
			WorkspacePath: m.cfg.WorkspacePath(sessionID),
			PortMap:       info.PortMap,
			LastUsed:      time.Now(),
		}
		m.store(inst)
		if err := m.persist(); err != nil {
			return models.SandboxInstance{}, err
		}
		m.ensureWatcher(sessionID, inst.WorkspacePath)
		return inst, nil
	}

	return m.createContainer(ctx, sessionID, ownerID, name)
}

func (m *Manager) createContainer(ctx context.Context, sessionID, ownerID, name string) (models.SandboxInstance, error) {
	workspacePath := m.cfg.WorkspacePath(sessionID)
	if err := os.MkdirAll(workspacePath, 0o755); err != nil {
		return models.SandboxInstance{}, fmt.Errorf("create session workspace: %w", err)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		portMap := map[int]int{}
		var acquired []int
		for _, containerPort := range m.cfg.ExposedPorts {
			hostPort, err := m.ports.Acquire()
			if err != nil {
				for _, p := range acquired {
					m.ports.Release(p)
				}
				return models.SandboxInstance{}, err
			}
			acquired = append(acquired, hostPort)
			portMap[containerPort] = hostPort
		}

		env := map[string]string{}
		for k, v := range m.cfg.ExtraEnv {
			env[k] = v
		}

		containerID, err := m.runtime.Run(ctx, ContainerSpec{
			Name:            name,
			Image:           m.cfg.Image,
			WorkspacePath:   workspacePath,
			CPULimit:        m.cfg.CPULimit,
			MemoryLimit:     m.cfg.MemoryLimit,
			MemorySwapLimit: m.cfg.MemorySwapLimit,
			PIDsLimit:       m.cfg.PIDsLimit,
			NofileUlimit:    m.cfg.NofileUlimit,
			NetworkMode:     m.cfg.NetworkMode,
			StartCommand:    m.cfg.StartCommand,
			PortMap:         portMap,
			Env:             env,
		})
		if err != nil {
			for _, p := range acquired {
				m.ports.Release(p)
			}
			lastErr = err
			continue
		}

		inst := models.SandboxInstance{
			SessionID:     sessionID,
			OwnerID:       ownerID,
			ContainerName: name,
			ContainerID:   containerID,
			WorkspacePath: workspacePath,
			PortMap:       portMap,
			LastUsed:      time.Now(),
		}
		m.store(inst)
		if err := m.persist(); err != nil {
			return models.SandboxInstance{}, err
		}
		m.ensureWatcher(sessionID, workspacePath)
		return inst, nil
	}
	return models.SandboxInstance{}, fmt.Errorf("allocate sandbox container after %d attempts: %w", maxAttempts, lastErr)
}

func (m *Manager) store(inst models.SandboxInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.SessionID] = inst
}

func (m *Manager) persist() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked()
}

func (m *Manager) persistLocked() error {
	snapshot := make(map[string]models.SandboxInstance, len(m.instances))
	for k, v := range m.instances {
		snapshot[k] = v
	}
	return m.meta.Save(snapshot)
}

// MarkActive bumps a session's last-used timestamp and persists it.
func (m *Manager) MarkActive(sessionID string) {
	m.mu.Lock()
	inst, ok := m.instances[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	inst.LastUsed = time.Now()
	m.instances[sessionID] = inst
	m.mu.Unlock()
	_ = m.persist()
}

// DestroySessionContainer stops a session's container, releases its ports,
// stops its workspace watcher, and removes its metadata entry.
func (m *Manager) DestroySessionContainer(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	inst, ok := m.instances[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.instances, sessionID)
	m.mu.Unlock()

	m.stopWatcher(sessionID)

	if err := m.runtime.Stop(ctx, inst.ContainerName); err != nil {
		return fmt.Errorf("stop sandbox container: %w", err)
	}
	for _, hostPort := range inst.PortMap {
		m.ports.Release(hostPort)
	}
	return m.persist()
}

// DestroyAll destroys every live instance, optionally filtered to one
// owner.
func (m *Manager) DestroyAll(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	var sessionIDs []string
	for id, inst := range m.instances {
		if ownerID == "" || inst.OwnerID == ownerID {
			sessionIDs = append(sessionIDs, id)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range sessionIDs {
		if err := m.DestroySessionContainer(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CleanupIdle destroys every instance idle for at least the configured
// IdleTimeout, returning the reaped session ids. now defaults to
// time.Now() when zero.
func (m *Manager) CleanupIdle(ctx context.Context, now time.Time) ([]string, error) {
	if m.cfg.IdleTimeout <= 0 {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now()
	}

	m.mu.Lock()
	var stale []string
	for id, inst := range m.instances {
		if now.Sub(inst.LastUsed) >= m.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range stale {
		if err := m.DestroySessionContainer(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return stale, firstErr
}

// StartIdleReaper starts a background loop that sleeps for the configured
// GC interval, reaps idle containers, and repeats until Stop is called.
func (m *Manager) StartIdleReaper() {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.reaperCancel = cancel
	m.reaperDone = make(chan struct{})

	go func() {
		defer close(m.reaperDone)
		ticker := time.NewTicker(m.cfg.GCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = m.CleanupIdle(ctx, time.Time{})
			}
		}
	}()
}

// StopIdleReaper signals the reaper loop to exit and waits for it.
func (m *Manager) StopIdleReaper() {
	if m.reaperCancel == nil {
		return
	}
	m.reaperCancel()
	<-m.reaperDone
}
