package sessions

import (
	"context"
	"errors"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// ErrSessionNotFound is returned when a session id has no matching record.
var ErrSessionNotFound = errors.New("session not found")

// ErrForbidden is returned when a session exists but belongs to a
// different owner than the one requesting it.
var ErrForbidden = errors.New("session belongs to a different owner")

// Store is the persistence contract for sessions and their message
// history. Implementations must be safe for concurrent use; callers that
// need read-modify-write semantics across multiple calls should go
// through LockingStore.WithLock instead of composing Get+Update directly.
type Store interface {
	// Create inserts a new session record. The caller is expected to have
	// already populated ID/OwnerID/CreatedAt/UpdatedAt.
	Create(ctx context.Context, session *models.Session) error

	// Get returns the session for id. If ownerID is non-empty, the
	// session must belong to that owner or ErrForbidden is returned.
	Get(ctx context.Context, id string, ownerID string) (*models.Session, error)

	// List returns all sessions owned by ownerID, most recently updated first.
	List(ctx context.Context, ownerID string) ([]*models.Session, error)

	// Update persists changes to an existing session (e.g. title, UpdatedAt).
	Update(ctx context.Context, session *models.Session) error

	// Delete removes a session and its message history.
	Delete(ctx context.Context, id string) error

	// AppendMessage appends msg to the session's transcript and bumps the
	// session's UpdatedAt. If the session's title is still the default
	// placeholder and msg is the first user message, the title is derived
	// from its content.
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error

	// ListMessages returns the full transcript for a session in
	// chronological order.
	ListMessages(ctx context.Context, sessionID string, ownerID string) ([]models.Message, error)
}
