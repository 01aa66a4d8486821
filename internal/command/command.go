// Package command implements the mutations a user can apply to local
// conversation state and the executor that runs them. A Command is a kind
// tag plus a params.Set; it can always be rebuilt from those two values, so
// pending commands survive a restart through the journal.
package command

import (
	"errors"
	"fmt"

	"github.com/sherry5707/Messaging/internal/params"
)

// Parameter keys.
const (
	KeyIsList            = "is_list"
	KeyConversationID    = "conversation_id"
	KeyConversationIDs   = "conversation_ids"
	KeyPinned            = "pinned"
	KeyArchived          = "archived"
	KeyMessageID         = "message_id"
	KeyConversationName  = "conversation_name"
	KeyDestination       = "destination"
	KeySenderName        = "sender_name"
	KeySenderDestination = "sender_destination"
	KeyContent           = "content"
	KeySentTS            = "sent_ts"
	KeyReceivedTS        = "received_ts"
	KeyRead              = "read"
)

// Command is one unit of work.
type Command struct {
	Kind   Kind
	Params *params.Set
}

// Result is returned by a successful transactional step.
type Result struct {
	Kind Kind
	// Affected is the number of rows the step changed.
	Affected int64
	// NoOp is set when the step found nothing to change.
	NoOp bool
}

// FromParams rebuilds a command from its kind and parameters. It validates
// but never touches the store.
func FromParams(kind Kind, ps *params.Set) (Command, error) {
	c := Command{Kind: kind, Params: ps.Clone()}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

func targetParams(id string) *params.Set {
	return params.New().PutBool(KeyIsList, false).PutString(KeyConversationID, id)
}

func targetListParams(ids []string) *params.Set {
	return params.New().PutBool(KeyIsList, true).PutStrings(KeyConversationIDs, ids)
}

// NewMarkAsRead marks every message of a conversation read and seen.
func NewMarkAsRead(id string) Command {
	return Command{Kind: MarkAsRead, Params: targetParams(id)}
}

// NewMarkAsReadList marks several conversations read in one transaction.
func NewMarkAsReadList(ids []string) Command {
	return Command{Kind: MarkAsRead, Params: targetListParams(ids)}
}

// NewMarkAsUnread marks every message of a conversation unread and unseen.
func NewMarkAsUnread(id string) Command {
	return Command{Kind: MarkAsUnread, Params: targetParams(id)}
}

// NewMarkAsUnreadList marks several conversations unread in one transaction.
func NewMarkAsUnreadList(ids []string) Command {
	return Command{Kind: MarkAsUnread, Params: targetListParams(ids)}
}

// NewChangePinned pins or unpins a conversation.
func NewChangePinned(id string, pinned bool) Command {
	return Command{Kind: ChangePinned, Params: targetParams(id).PutBool(KeyPinned, pinned)}
}

// NewChangePinnedList pins or unpins several conversations.
func NewChangePinnedList(ids []string, pinned bool) Command {
	return Command{Kind: ChangePinned, Params: targetListParams(ids).PutBool(KeyPinned, pinned)}
}

// NewChangeArchived archives or restores a conversation.
func NewChangeArchived(id string, archived bool) Command {
	return Command{Kind: ChangeArchived, Params: targetParams(id).PutBool(KeyArchived, archived)}
}

// NewChangeArchivedList archives or restores several conversations.
func NewChangeArchivedList(ids []string, archived bool) Command {
	return Command{Kind: ChangeArchived, Params: targetListParams(ids).PutBool(KeyArchived, archived)}
}

// NewSaveFavorite favorites a message.
func NewSaveFavorite(messageID string) Command {
	return Command{Kind: SaveFavorite, Params: params.New().PutString(KeyMessageID, messageID)}
}

// NewDeleteFavorite removes a message from favorites.
func NewDeleteFavorite(messageID string) Command {
	return Command{Kind: DeleteFavorite, Params: params.New().PutString(KeyMessageID, messageID)}
}

// NewDeleteMessage deletes a message.
func NewDeleteMessage(messageID string) Command {
	return Command{Kind: DeleteMessage, Params: params.New().PutString(KeyMessageID, messageID)}
}

// Incoming describes a message delivered to this client.
type Incoming struct {
	MessageID         string
	ConversationID    string
	ConversationName  string
	Destination       string
	SenderName        string
	SenderDestination string
	Content           string
	SentTS            int64
	ReceivedTS        int64
	Read              bool
}

// NewReceiveMessage stores an incoming message.
func NewReceiveMessage(m Incoming) Command {
	ps := params.New().
		PutString(KeyMessageID, m.MessageID).
		PutString(KeyConversationID, m.ConversationID).
		PutString(KeyConversationName, m.ConversationName).
		PutString(KeyDestination, m.Destination).
		PutString(KeySenderName, m.SenderName).
		PutString(KeySenderDestination, m.SenderDestination).
		PutString(KeyContent, m.Content).
		PutInt(KeySentTS, m.SentTS).
		PutInt(KeyReceivedTS, m.ReceivedTS).
		PutBool(KeyRead, m.Read)
	return Command{Kind: ReceiveMessage, Params: ps}
}

// Validate checks the parameters for the command's kind.
func (c Command) Validate() error {
	if c.Params == nil {
		return invalidf("%s: no parameters", c.Kind)
	}
	var err error
	switch c.Kind {
	case MarkAsRead, MarkAsUnread:
		_, _, err = c.targets()
	case ChangePinned:
		if _, _, err = c.targets(); err == nil {
			_, err = c.Params.Bool(KeyPinned)
		}
	case ChangeArchived:
		if _, _, err = c.targets(); err == nil {
			_, err = c.Params.Bool(KeyArchived)
		}
	case SaveFavorite, DeleteFavorite, DeleteMessage:
		_, err = c.messageID()
	case ReceiveMessage:
		_, err = c.incoming()
	default:
		return invalidf("unknown command kind %q", c.Kind)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidArgument) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidArgument, c.Kind, err)
}

// targets returns the conversation ids and whether the command is in list
// mode.
func (c Command) targets() ([]string, bool, error) {
	isList, err := c.Params.BoolOr(KeyIsList, false)
	if err != nil {
		return nil, false, err
	}
	if !isList {
		id, err := c.Params.String(KeyConversationID)
		if err != nil {
			return nil, false, err
		}
		if id == "" {
			return nil, false, invalidf("%s: empty conversation id", c.Kind)
		}
		return []string{id}, false, nil
	}
	ids, err := c.Params.Strings(KeyConversationIDs)
	if err != nil {
		return nil, true, err
	}
	if len(ids) == 0 {
		return nil, true, invalidf("%s: empty conversation id list", c.Kind)
	}
	for _, id := range ids {
		if id == "" {
			return nil, true, invalidf("%s: empty conversation id in list", c.Kind)
		}
	}
	return ids, true, nil
}

func (c Command) messageID() (string, error) {
	id, err := c.Params.String(KeyMessageID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", invalidf("%s: empty message id", c.Kind)
	}
	return id, nil
}

func (c Command) incoming() (Incoming, error) {
	var m Incoming
	var err error
	if m.MessageID, err = c.messageID(); err != nil {
		return m, err
	}
	if m.ConversationID, err = c.Params.String(KeyConversationID); err != nil {
		return m, err
	}
	if m.ConversationID == "" {
		return m, invalidf("%s: empty conversation id", c.Kind)
	}
	if m.ReceivedTS, err = c.Params.Int(KeyReceivedTS); err != nil {
		return m, err
	}
	optional := []struct {
		key string
		dst *string
	}{
		{KeyConversationName, &m.ConversationName},
		{KeyDestination, &m.Destination},
		{KeySenderName, &m.SenderName},
		{KeySenderDestination, &m.SenderDestination},
		{KeyContent, &m.Content},
	}
	for _, o := range optional {
		if !c.Params.Has(o.key) {
			continue
		}
		if *o.dst, err = c.Params.String(o.key); err != nil {
			return m, err
		}
	}
	if c.Params.Has(KeySentTS) {
		if m.SentTS, err = c.Params.Int(KeySentTS); err != nil {
			return m, err
		}
	}
	if m.Read, err = c.Params.BoolOr(KeyRead, false); err != nil {
		return m, err
	}
	return m, nil
}
