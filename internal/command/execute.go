package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sherry5707/Messaging/internal/store"
	"go.uber.org/zap"
)

// env is what a transactional step may touch.
type env struct {
	tx      *store.Tx
	changes *Changes
	logger  *zap.Logger
	now     func() time.Time
}

// refreshSummary is the deferred step that keeps unread_summary in line
// with read-state changes.
var refreshSummary = Deferred{
	Name: "refresh_unread_summary",
	Run: func(ctx context.Context, db *store.DB) error {
		_, err := db.RefreshUnreadSummary(ctx)
		return err
	},
}

// execute runs the transactional step for c.
func (c Command) execute(ctx context.Context, e *env) (Result, error) {
	switch c.Kind {
	case MarkAsRead:
		return c.execReadState(ctx, e, true)
	case MarkAsUnread:
		return c.execReadState(ctx, e, false)
	case ChangePinned:
		return c.execFlag(ctx, e, KeyPinned)
	case ChangeArchived:
		return c.execFlag(ctx, e, KeyArchived)
	case SaveFavorite:
		return c.execSaveFavorite(ctx, e)
	case DeleteFavorite:
		return c.execDeleteFavorite(ctx, e)
	case ReceiveMessage:
		return c.execReceive(ctx, e)
	case DeleteMessage:
		return c.execDeleteMessage(ctx, e)
	default:
		return Result{}, invalidf("unknown command kind %q", c.Kind)
	}
}

// execReadState sets read and seen on every message of the target
// conversations whose state differs. In list mode only a list-level change
// is recorded, once, after the loop.
func (c Command) execReadState(ctx context.Context, e *env, read bool) (Result, error) {
	ids, isList, err := c.targets()
	if err != nil {
		return Result{}, err
	}
	var total int64
	for _, id := range ids {
		n, err := e.tx.Update(ctx, "messages",
			store.Values{"read": read, "seen": read},
			"(read != ? OR seen != ?) AND conversation_id = ?", read, read, id)
		if err != nil {
			return Result{}, err
		}
		if n == 0 {
			continue
		}
		total += n
		if err := e.tx.RecountUnread(ctx, id); err != nil {
			return Result{}, fmt.Errorf("recount unread %s: %w", id, err)
		}
		if !isList {
			e.changes.ConversationChanged(id)
		}
	}
	if total == 0 {
		return Result{Kind: c.Kind, NoOp: true}, nil
	}
	e.changes.ListChanged()
	e.changes.RequestDeferred(refreshSummary)
	return Result{Kind: c.Kind, Affected: total}, nil
}

// execFlag sets the pinned or archived column.
func (c Command) execFlag(ctx context.Context, e *env, column string) (Result, error) {
	ids, isList, err := c.targets()
	if err != nil {
		return Result{}, err
	}
	value, err := c.Params.Bool(column)
	if err != nil {
		return Result{}, err
	}
	now := e.now().UnixMilli()
	var total int64
	for _, id := range ids {
		n, err := e.tx.Update(ctx, "conversations",
			store.Values{column: value, "updated_at": now},
			"id = ? AND "+column+" != ?", id, value)
		if err != nil {
			return Result{}, err
		}
		total += n
		if n > 0 && !isList {
			e.changes.ConversationChanged(id)
		}
	}
	if total == 0 {
		return Result{Kind: c.Kind, NoOp: true}, nil
	}
	e.changes.ListChanged()
	return Result{Kind: c.Kind, Affected: total}, nil
}

// execSaveFavorite snapshots a message into favorites. A vanished message is
// a hard failure; an already favorited one is left alone.
func (c Command) execSaveFavorite(ctx context.Context, e *env) (Result, error) {
	id, err := c.messageID()
	if err != nil {
		return Result{}, err
	}
	m, err := e.tx.Message(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load message %s: %w", id, err)
	}
	if m == nil {
		return Result{}, &MissingEntityError{Entity: "message", ID: id}
	}
	if m.Favorite {
		e.logger.Warn("message is already a favorite", zap.String("message_id", id))
		return Result{Kind: c.Kind, NoOp: true}, nil
	}

	if _, err := e.tx.Update(ctx, "messages", store.Values{"favorite": true}, "id = ?", id); err != nil {
		return Result{}, err
	}
	// A snapshot left behind by an earlier unflagged state is replaced, not updated.
	if _, err := e.tx.Delete(ctx, "favorites", "message_id = ?", id); err != nil {
		return Result{}, err
	}
	fullName := m.SenderName
	if fullName == "" {
		fullName = m.SenderDestination
	}
	if _, err := e.tx.Insert(ctx, "favorites", store.Values{
		"id":               uuid.NewString(),
		"message_id":       m.ID,
		"conversation_id":  m.ConversationID,
		"full_name":        fullName,
		"send_destination": m.SenderDestination,
		"content":          m.Content,
		"sent_ts":          m.SentTS,
		"received_ts":      m.ReceivedTS,
		"saved_at":         e.now().UnixMilli(),
	}, false); err != nil {
		return Result{}, err
	}
	e.changes.ConversationChanged(m.ConversationID)
	e.changes.FavoritesChanged()
	return Result{Kind: c.Kind, Affected: 1}, nil
}

// execDeleteFavorite removes the favorite snapshot and clears the message
// flag. Nothing to remove is a silent no-op; a vanished message still gets
// its snapshot cleaned up.
func (c Command) execDeleteFavorite(ctx context.Context, e *env) (Result, error) {
	id, err := c.messageID()
	if err != nil {
		return Result{}, err
	}
	removed, err := e.tx.Delete(ctx, "favorites", "message_id = ?", id)
	if err != nil {
		return Result{}, err
	}
	m, err := e.tx.Message(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load message %s: %w", id, err)
	}
	var cleared int64
	if m != nil && m.Favorite {
		if cleared, err = e.tx.Update(ctx, "messages", store.Values{"favorite": false}, "id = ?", id); err != nil {
			return Result{}, err
		}
		e.changes.ConversationChanged(m.ConversationID)
	}
	if m == nil && removed > 0 {
		e.logger.Info("removed favorite of deleted message", zap.String("message_id", id))
	}
	if removed == 0 && cleared == 0 {
		return Result{Kind: c.Kind, NoOp: true}, nil
	}
	e.changes.FavoritesChanged()
	return Result{Kind: c.Kind, Affected: removed + cleared}, nil
}

// execReceive stores an incoming message. Receiving the same message id
// again changes nothing.
func (c Command) execReceive(ctx context.Context, e *env) (Result, error) {
	m, err := c.incoming()
	if err != nil {
		return Result{}, err
	}
	existing, err := e.tx.Message(ctx, m.MessageID)
	if err != nil {
		return Result{}, fmt.Errorf("load message %s: %w", m.MessageID, err)
	}
	if existing != nil {
		return Result{Kind: c.Kind, NoOp: true}, nil
	}
	ts := m.ReceivedTS
	if ts == 0 {
		ts = m.SentTS
	}
	if err := e.tx.UpsertConversation(ctx, &store.Conversation{
		ID:            m.ConversationID,
		Name:          m.ConversationName,
		Destination:   m.Destination,
		SortTimestamp: ts,
		Snippet:       m.Content,
	}); err != nil {
		return Result{}, fmt.Errorf("upsert conversation %s: %w", m.ConversationID, err)
	}
	n, err := e.tx.Insert(ctx, "messages", store.Values{
		"id":                 m.MessageID,
		"conversation_id":    m.ConversationID,
		"sender_name":        m.SenderName,
		"sender_destination": m.SenderDestination,
		"content":            m.Content,
		"sent_ts":            m.SentTS,
		"received_ts":        m.ReceivedTS,
		"read":               m.Read,
		"seen":               m.Read,
	}, true)
	if err != nil {
		return Result{}, err
	}
	if err := e.tx.RecountUnread(ctx, m.ConversationID); err != nil {
		return Result{}, fmt.Errorf("recount unread %s: %w", m.ConversationID, err)
	}
	e.changes.ConversationChanged(m.ConversationID)
	e.changes.ListChanged()
	e.changes.RequestDeferred(refreshSummary)
	return Result{Kind: c.Kind, Affected: n}, nil
}

// execDeleteMessage deletes one message. Its favorite snapshot, if any, is a
// copy and stays.
func (c Command) execDeleteMessage(ctx context.Context, e *env) (Result, error) {
	id, err := c.messageID()
	if err != nil {
		return Result{}, err
	}
	m, err := e.tx.Message(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load message %s: %w", id, err)
	}
	if m == nil {
		return Result{Kind: c.Kind, NoOp: true}, nil
	}
	n, err := e.tx.Delete(ctx, "messages", "id = ?", id)
	if err != nil {
		return Result{}, err
	}
	if _, err := e.tx.Exec(ctx, `
		UPDATE conversations
		SET snippet = COALESCE((SELECT content FROM messages WHERE conversation_id = ? ORDER BY received_ts DESC LIMIT 1), '')
		WHERE id = ?`, m.ConversationID, m.ConversationID); err != nil {
		return Result{}, fmt.Errorf("refresh snippet %s: %w", m.ConversationID, err)
	}
	if err := e.tx.RecountUnread(ctx, m.ConversationID); err != nil {
		return Result{}, fmt.Errorf("recount unread %s: %w", m.ConversationID, err)
	}
	e.changes.ConversationChanged(m.ConversationID)
	e.changes.ListChanged()
	e.changes.RequestDeferred(refreshSummary)
	return Result{Kind: c.Kind, Affected: n}, nil
}
