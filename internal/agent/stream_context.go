package agent

import (
	"context"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// PersistFunc persists a completed, persist-worthy emission as a Message.
type PersistFunc func(sender models.SenderKind, role models.Role, content, messageID string, timestamp time.Time) models.Message

// StreamContext is the per-turn streaming scope: it carries the session and
// owner identity, the event publisher, and the persistence callback. It is
// constructed once per turn by the Orchestrator and threaded explicitly
// through context.Context — never held as ambient/global state.
type StreamContext struct {
	SessionID string
	OwnerID   string
	Publisher EventSink
	Persist   PersistFunc

	// Emitter is the sequenced event emitter for this turn. It is
	// constructed with this StreamContext as its sink, so every event it
	// emits flows through Emit below (transport plus conditional persist).
	Emitter *EventEmitter

	// PersistedMessages accumulates messages persisted during this turn.
	PersistedMessages []models.Message
}

// NewStreamContext builds a StreamContext for one orchestrator turn and
// wires its EventEmitter to publish back through itself.
func NewStreamContext(sessionID, ownerID string, publisher EventSink, persist PersistFunc) *StreamContext {
	sc := &StreamContext{SessionID: sessionID, OwnerID: ownerID, Publisher: publisher, Persist: persist}
	sc.Emitter = NewEventEmitter(sessionID, sc)
	return sc
}

type streamCtxKey struct{}

// WithStreamContext returns a new context carrying sc.
func WithStreamContext(ctx context.Context, sc *StreamContext) context.Context {
	return context.WithValue(ctx, streamCtxKey{}, sc)
}

// StreamContextFromContext retrieves the StreamContext previously attached
// with WithStreamContext, if any.
func StreamContextFromContext(ctx context.Context) (*StreamContext, bool) {
	sc, ok := ctx.Value(streamCtxKey{}).(*StreamContext)
	return sc, ok
}

// Emit publishes an event and, if it is a persist-worthy final emission,
// invokes the persist function and records the result.
func (sc *StreamContext) Emit(ctx context.Context, e models.AgentEvent) {
	if sc == nil {
		return
	}
	if sc.Publisher != nil {
		sc.Publisher.Emit(ctx, e)
	}
	// Publisher absence drops the event for transport; persistence below still runs.

	if !shouldPersist(e) {
		return
	}
	if sc.Persist == nil {
		return
	}

	content := ""
	if e.Text != nil {
		content = e.Text.Text
	} else if e.Stream != nil {
		content = e.Stream.Final
	}

	msg := sc.Persist(e.Sender, e.Role, content, e.MessageID, e.Time)
	sc.PersistedMessages = append(sc.PersistedMessages, msg)
}

// shouldPersist implements the persisted-event-kind table from the stream
// fabric design: token only when final+persist_final; status/error/message/
// tool_call always; file_change never.
func shouldPersist(e models.AgentEvent) bool {
	switch e.Type {
	case models.AgentEventModelCompleted:
		return e.Final && e.PersistFinal
	case "status", models.AgentEventMessage, models.AgentEventToolCall, models.AgentEventRunError:
		return true
	case models.AgentEventFileChange:
		return false
	default:
		return false
	}
}
