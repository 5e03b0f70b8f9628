package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// metaStore persists the set of live sandbox instances to a single JSON
// file, written atomically (temp file + rename) after every mutation, the
// same idiom internal/sessions uses for its own on-disk records.
type metaStore struct {
	path string
	mu   sync.Mutex
}

func newMetaStore(baseDir string) *metaStore {
	return &metaStore{path: filepath.Join(baseDir, "sandboxes_meta.json")}
}

// Load reads the persisted instance set, tolerating a missing file.
func (m *metaStore) Load() (map[string]models.SandboxInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.SandboxInstance{}, nil
		}
		return nil, fmt.Errorf("read sandbox metadata: %w", err)
	}
	out := map[string]models.SandboxInstance{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse sandbox metadata: %w", err)
	}
	return out, nil
}

// Save atomically rewrites the persisted instance set.
func (m *metaStore) Save(instances map[string]models.SandboxInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sandbox metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("mkdir sandbox metadata dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sandbox metadata temp file: %w", err)
	}
	return os.Rename(tmp, m.path)
}
