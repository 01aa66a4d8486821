package command

import "fmt"

// Kind tags a command variant. The set is closed: every Kind below has a
// case in Command.execute and in validate.
type Kind string

const (
	MarkAsRead     Kind = "mark_as_read"
	MarkAsUnread   Kind = "mark_as_unread"
	ChangePinned   Kind = "change_pinned"
	ChangeArchived Kind = "change_archived"
	SaveFavorite   Kind = "save_favorite"
	DeleteFavorite Kind = "delete_favorite"
	ReceiveMessage Kind = "receive_message"
	DeleteMessage  Kind = "delete_message"
)

// Kinds lists every command kind.
var Kinds = []Kind{
	MarkAsRead, MarkAsUnread, ChangePinned, ChangeArchived,
	SaveFavorite, DeleteFavorite, ReceiveMessage, DeleteMessage,
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown command kind %q", ErrInvalidArgument, s)
}

func (k Kind) String() string { return string(k) }
