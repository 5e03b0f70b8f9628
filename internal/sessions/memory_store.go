package sessions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// MemoryStore is an in-process, non-persistent Store used for tests and for
// the "memory" storage backend. All state is lost on process restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string, ownerID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if ownerID != "" && sess.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	clone := *sess
	return &clone, nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if ownerID != "" && sess.OwnerID != ownerID {
			continue
		}
		clone := *sess
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	maybeRenameFromMessage(sess, msg)
	sess.UpdatedAt = time.Now()
	s.messages[sessionID] = append(s.messages[sessionID], *msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, sessionID string, ownerID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if ownerID != "" && sess.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	out := make([]models.Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

// maybeRenameFromMessage renames a session away from its placeholder title
// once the first user message arrives, using up to 60 characters of it.
func maybeRenameFromMessage(sess *models.Session, msg *models.Message) {
	if msg.Sender != models.SenderUser {
		return
	}
	if sess.Title != "" && sess.Title != models.DefaultSessionTitle(sess.ID) {
		return
	}
	title := strings.TrimSpace(msg.Content)
	if title == "" {
		return
	}
	if len(title) > 60 {
		title = title[:60]
	}
	sess.Title = title
}
