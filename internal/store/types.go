package store

// Conversation is one row of the conversation list.
type Conversation struct {
	ID            string
	Name          string
	Destination   string
	Pinned        bool
	Archived      bool
	UnreadCount   int
	SortTimestamp int64 // unix ms
	Snippet       string
}

// Message is a stored message.
type Message struct {
	ID                string
	ConversationID    string
	SenderName        string
	SenderDestination string
	Content           string
	SentTS            int64
	ReceivedTS        int64
	Read              bool
	Seen              bool
	Favorite          bool
}

// Favorite is a snapshot of a message taken when it was favorited. It is
// never updated in place.
type Favorite struct {
	ID              string
	MessageID       string
	ConversationID  string
	FullName        string
	SendDestination string
	Content         string
	SentTS          int64
	ReceivedTS      int64
	SavedAt         int64
}

// UnreadSummary is the derived totals row refreshed after read-state changes.
type UnreadSummary struct {
	Conversations int
	Messages      int
	UpdatedAt     int64
}
