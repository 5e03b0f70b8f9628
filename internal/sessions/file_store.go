package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// fileRecord is the on-disk shape of one session file: metadata plus its
// full transcript, kept together so a session can be read or removed with
// a single file operation.
type fileRecord struct {
	Session  models.Session  `json:"session"`
	Messages []models.Message `json:"messages"`
}

// FileStore is a file-backed Store: one JSON file per session under
// "<base>/sessions/<id>.json", plus an owner-indexed "<base>/index.json"
// mapping owner id to session ids for List without a directory scan.
// Writes are atomic (temp file + rename) and guarded by a single mutex;
// this trades write concurrency for simplicity, matching the scale of a
// single-node assistant backend.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates a file-backed store rooted at basePath, creating the
// directory if needed.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create session store dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) sessionPath(id string) string {
	return filepath.Join(s.basePath, "sessions", id+".json")
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.basePath, "index.json")
}

func (s *FileStore) readRecord(id string) (*fileRecord, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *FileStore) writeRecord(rec *fileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.Session.ID, err)
	}
	path := s.sessionPath(rec.Session.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session temp file: %w", err)
	}
	return os.Rename(tmp, path)
}

// readIndex loads the owner->session-ids index, tolerating a missing file.
func (s *FileStore) readIndex() (map[string][]string, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}
	idx := map[string][]string{}
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse session index: %w", err)
	}
	return idx, nil
}

func (s *FileStore) writeIndex(idx map[string][]string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session index temp file: %w", err)
	}
	return os.Rename(tmp, s.indexPath())
}

func (s *FileStore) addToIndex(ownerID, sessionID string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	for _, id := range idx[ownerID] {
		if id == sessionID {
			return nil
		}
	}
	idx[ownerID] = append(idx[ownerID], sessionID)
	return s.writeIndex(idx)
}

func (s *FileStore) removeFromIndex(ownerID, sessionID string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	ids := idx[ownerID]
	out := ids[:0]
	for _, id := range ids {
		if id != sessionID {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		delete(idx, ownerID)
	} else {
		idx[ownerID] = out
	}
	return s.writeIndex(idx)
}

func (s *FileStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &fileRecord{Session: *session}
	if err := s.writeRecord(rec); err != nil {
		return err
	}
	return s.addToIndex(session.OwnerID, session.ID)
}

func (s *FileStore) Get(ctx context.Context, id string, ownerID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && rec.Session.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	sess := rec.Session
	return &sess, nil
}

func (s *FileStore) List(ctx context.Context, ownerID string) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var out []*models.Session
	for _, id := range idx[ownerID] {
		rec, err := s.readRecord(id)
		if err != nil {
			if err == ErrSessionNotFound {
				continue
			}
			return nil, err
		}
		sess := rec.Session
		out = append(out, &sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *FileStore) Update(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(session.ID)
	if err != nil {
		return err
	}
	rec.Session = *session
	return s.writeRecord(rec)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return s.removeFromIndex(rec.Session.OwnerID, id)
}

func (s *FileStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(sessionID)
	if err != nil {
		return err
	}
	maybeRenameFromMessage(&rec.Session, msg)
	rec.Session.UpdatedAt = time.Now()
	rec.Messages = append(rec.Messages, *msg)
	return s.writeRecord(rec)
}

func (s *FileStore) ListMessages(ctx context.Context, sessionID string, ownerID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(sessionID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && rec.Session.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	out := make([]models.Message, len(rec.Messages))
	copy(out, rec.Messages)
	return out, nil
}
