package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreCreateGetList(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			sess := &models.Session{ID: "s1", OwnerID: "owner-1", Title: models.DefaultSessionTitle("s1"), CreatedAt: now, UpdatedAt: now}
			if err := store.Create(ctx, sess); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := store.Get(ctx, "s1", "owner-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != sess.Title {
				t.Fatalf("unexpected title: %q", got.Title)
			}

			if _, err := store.Get(ctx, "s1", "someone-else"); err != ErrForbidden {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
			if _, err := store.Get(ctx, "missing", ""); err != ErrSessionNotFound {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}

			list, err := store.List(ctx, "owner-1")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 || list[0].ID != "s1" {
				t.Fatalf("unexpected list: %#v", list)
			}
		})
	}
}

func TestStoreAppendMessageRenamesFromFirstUserMessage(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			sess := &models.Session{ID: "s1", OwnerID: "owner-1", Title: models.DefaultSessionTitle("s1"), CreatedAt: now, UpdatedAt: now}
			if err := store.Create(ctx, sess); err != nil {
				t.Fatalf("Create: %v", err)
			}

			msg := &models.Message{ID: "m1", SessionID: "s1", Sender: models.SenderUser, Content: "please build a widget", Timestamp: now}
			if err := store.AppendMessage(ctx, "s1", msg); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}

			got, err := store.Get(ctx, "s1", "owner-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != "please build a widget" {
				t.Fatalf("expected renamed title, got %q", got.Title)
			}

			msgs, err := store.ListMessages(ctx, "s1", "owner-1")
			if err != nil {
				t.Fatalf("ListMessages: %v", err)
			}
			if len(msgs) != 1 || msgs[0].Content != msg.Content {
				t.Fatalf("unexpected messages: %#v", msgs)
			}
		})
	}
}

func TestStoreDeleteRemovesSessionAndMessages(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			sess := &models.Session{ID: "s1", OwnerID: "owner-1", CreatedAt: now, UpdatedAt: now}
			if err := store.Create(ctx, sess); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := store.Delete(ctx, "s1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, "s1", ""); err != ErrSessionNotFound {
				t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
			}
			list, err := store.List(ctx, "owner-1")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 0 {
				t.Fatalf("expected empty list after delete, got %#v", list)
			}
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	now := time.Now()
	sess := &models.Session{ID: "s1", OwnerID: "owner-1", CreatedAt: now, UpdatedAt: now}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	got, err := reopened.Get(ctx, "s1", "owner-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.ID != "s1" {
		t.Fatalf("unexpected session after reopen: %#v", got)
	}
}

func TestLockingStoreWithLockDelegates(t *testing.T) {
	store := NewMemoryStore()
	locks := NewSessionLockManager(DefaultLockTimeout)
	locking := NewLockingStore(store, locks, "test-holder")

	ctx := context.Background()
	now := time.Now()
	sess := &models.Session{ID: "s1", OwnerID: "owner-1", CreatedAt: now, UpdatedAt: now}
	if err := locking.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var sawTitle string
	err := locking.WithLock(ctx, "s1", func(inner Store) error {
		got, err := inner.Get(ctx, "s1", "")
		if err != nil {
			return err
		}
		sawTitle = got.Title
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if sawTitle != sess.Title {
		t.Fatalf("unexpected title seen under lock: %q", sawTitle)
	}
}

func TestStateStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	ss := NewStateStore(dir)

	type state struct {
		Counter int `json:"counter"`
	}

	if err := ss.PersistState("s1", state{Counter: 5}); err != nil {
		t.Fatalf("PersistState: %v", err)
	}

	var loaded state
	if err := ss.LoadState("s1", &loaded); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.Counter != 5 {
		t.Fatalf("expected counter 5, got %d", loaded.Counter)
	}

	// Loading a session with no persisted state must not error.
	var empty state
	if err := ss.LoadState("unknown", &empty); err != nil {
		t.Fatalf("LoadState for unknown session: %v", err)
	}
	if empty.Counter != 0 {
		t.Fatalf("expected zero-value state, got %#v", empty)
	}

	if err := ss.PersistActionDetail("s1", "step-1", map[string]string{"action": "did a thing"}); err != nil {
		t.Fatalf("PersistActionDetail: %v", err)
	}
	if _, err := filepath.Abs(dir); err != nil {
		t.Fatalf("filepath.Abs: %v", err)
	}

	if err := ss.ClearSessionState("s1"); err != nil {
		t.Fatalf("ClearSessionState: %v", err)
	}
	var afterClear state
	if err := ss.LoadState("s1", &afterClear); err != nil {
		t.Fatalf("LoadState after clear: %v", err)
	}
	if afterClear.Counter != 0 {
		t.Fatalf("expected cleared state, got %#v", afterClear)
	}
}
