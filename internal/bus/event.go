package bus

import "time"

// Topics published by the command executor and the daemon.
const (
	TopicList         = "list.changed"
	TopicConversation = "conversation.changed"
	TopicFavorites    = "favorites.changed"
	TopicStatus       = "status.changed"
)

// Event is a change hint. It never carries the changed data: subscribers
// re-query the store when they receive one.
type Event struct {
	Topic          string
	ConversationID string // set for TopicConversation
	Timestamp      time.Time
	Payload        any
}

// ListChanged returns a list-level hint.
func ListChanged() Event {
	return Event{Topic: TopicList, Timestamp: time.Now()}
}

// ConversationChanged returns a hint for one conversation.
func ConversationChanged(id string) Event {
	return Event{Topic: TopicConversation, ConversationID: id, Timestamp: time.Now()}
}

// FavoritesChanged returns a favorites-level hint.
func FavoritesChanged() Event {
	return Event{Topic: TopicFavorites, Timestamp: time.Now()}
}
