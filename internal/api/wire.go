package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sherry5707/Messaging/internal/listdata"
	"github.com/sherry5707/Messaging/internal/section"
	"github.com/sherry5707/Messaging/internal/store"
)

// SubmitRequest carries one command. Params is the JSON form of a params.Set.
type SubmitRequest struct {
	Kind   string `json:"kind"`
	Params string `json:"params"`
	Wait   bool   `json:"wait,omitempty"`
}

// SubmitResponse reports acceptance, and the step result when waited for.
type SubmitResponse struct {
	Accepted bool  `json:"accepted"`
	Waited   bool  `json:"waited,omitempty"`
	Affected int64 `json:"affected,omitempty"`
	NoOp     bool  `json:"no_op,omitempty"`
	Pending  int   `json:"pending"`
}

// ListConversationsRequest selects a view of the list. On a
// FollowConversations stream every message replaces the previous view.
type ListConversationsRequest struct {
	Archived     bool   `json:"archived,omitempty"`
	Search       string `json:"search,omitempty"`
	SearchBanner bool   `json:"search_banner,omitempty"`
}

// Item is one position of the sectioned list. Row indexes Conversations and
// is -1 for banners and headers. Divider is a trailing divider for rows and
// the favorites banner, and a leading one for headers.
type Item struct {
	Kind    string `json:"kind"`
	Row     int    `json:"row"`
	Divider bool   `json:"divider,omitempty"`
}

type ListConversationsResponse struct {
	Conversations   []Conversation `json:"conversations"`
	Items           []Item         `json:"items"`
	Favorite        *Favorite      `json:"favorite,omitempty"`
	PinnedLastIndex int            `json:"pinned_last_index"`
	TodayLastIndex  int            `json:"today_last_index"`
	Search          string         `json:"search,omitempty"`
	Archived        bool           `json:"archived,omitempty"`
	// Mode is the search state the snapshot was computed in, one of
	// not_in_search, in_search and back_from_search.
	Mode       string `json:"mode,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
}

type ListFavoritesRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListFavoritesResponse struct {
	Favorites []Favorite `json:"favorites"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile             string `json:"profile"`
	Status              string `json:"status"`
	SinceMS             int64  `json:"since_ms"`
	UptimeMS            int64  `json:"uptime_ms"`
	Pending             int    `json:"pending"`
	UnreadConversations int    `json:"unread_conversations"`
	UnreadMessages      int    `json:"unread_messages"`
}

// WatchRequest selects hints by topic prefix, and optionally one
// conversation.
type WatchRequest struct {
	Topic          string `json:"topic,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Change is one streamed hint.
type Change struct {
	ID             string `json:"id"`
	Topic          string `json:"topic"`
	ConversationID string `json:"conversation_id,omitempty"`
	TimestampMS    int64  `json:"ts_ms"`
	Status         string `json:"status,omitempty"`
}

type Conversation struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Destination   string `json:"destination,omitempty"`
	Pinned        bool   `json:"pinned,omitempty"`
	Archived      bool   `json:"archived,omitempty"`
	UnreadCount   int    `json:"unread_count"`
	SortTimestamp int64  `json:"sort_timestamp"`
	Snippet       string `json:"snippet,omitempty"`
}

type Favorite struct {
	ID              string `json:"id"`
	MessageID       string `json:"message_id"`
	ConversationID  string `json:"conversation_id"`
	FullName        string `json:"full_name"`
	SendDestination string `json:"send_destination,omitempty"`
	Content         string `json:"content"`
	SentTS          int64  `json:"sent_ts"`
	ReceivedTS      int64  `json:"received_ts"`
	SavedAt         int64  `json:"saved_at"`
}

type Message struct {
	ID                string `json:"id"`
	ConversationID    string `json:"conversation_id"`
	SenderName        string `json:"sender_name"`
	SenderDestination string `json:"sender_destination,omitempty"`
	Content           string `json:"content"`
	SentTS            int64  `json:"sent_ts"`
	ReceivedTS        int64  `json:"received_ts"`
	Read              bool   `json:"read"`
	Favorite          bool   `json:"favorite,omitempty"`
}

// Encode converts a wire value to a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from a Struct. A nil Struct leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func conversationToWire(c store.Conversation) Conversation {
	return Conversation{
		ID:            c.ID,
		Name:          c.Name,
		Destination:   c.Destination,
		Pinned:        c.Pinned,
		Archived:      c.Archived,
		UnreadCount:   c.UnreadCount,
		SortTimestamp: c.SortTimestamp,
		Snippet:       c.Snippet,
	}
}

func favoriteToWire(f store.Favorite) Favorite {
	return Favorite{
		ID:              f.ID,
		MessageID:       f.MessageID,
		ConversationID:  f.ConversationID,
		FullName:        f.FullName,
		SendDestination: f.SendDestination,
		Content:         f.Content,
		SentTS:          f.SentTS,
		ReceivedTS:      f.ReceivedTS,
		SavedAt:         f.SavedAt,
	}
}

func messageToWire(m store.Message) Message {
	return Message{
		ID:                m.ID,
		ConversationID:    m.ConversationID,
		SenderName:        m.SenderName,
		SenderDestination: m.SenderDestination,
		Content:           m.Content,
		SentTS:            m.SentTS,
		ReceivedTS:        m.ReceivedTS,
		Read:              m.Read,
		Favorite:          m.Favorite,
	}
}

func snapshotToWire(snap listdata.Snapshot) ListConversationsResponse {
	l := snap.Layout
	resp := ListConversationsResponse{
		Conversations:   make([]Conversation, 0, len(snap.Conversations)),
		Items:           make([]Item, 0, l.Count()),
		PinnedLastIndex: l.PinnedLastIndex(),
		TodayLastIndex:  l.TodayLastIndex(),
		Search:          snap.Search,
		Archived:        snap.Archived,
		Mode:            snap.Mode.String(),
		Generation:      snap.Generation,
	}
	for _, c := range snap.Conversations {
		resp.Conversations = append(resp.Conversations, conversationToWire(c))
	}
	for pos := 0; pos < l.Count(); pos++ {
		item := l.Item(pos)
		resp.Items = append(resp.Items, Item{
			Kind:    item.Kind.String(),
			Row:     item.RowIndex,
			Divider: divider(l, pos, item.Kind),
		})
	}
	if snap.Favorite != nil {
		f := favoriteToWire(*snap.Favorite)
		resp.Favorite = &f
	}
	return resp
}

func divider(l *section.Layout, pos int, kind section.Kind) bool {
	switch {
	case kind == section.KindRow:
		return l.RowDividerVisible(pos)
	case kind.IsHeader():
		return l.HeaderDividerVisible(pos)
	case kind == section.KindFavorites:
		return l.FavoritesDividerVisible()
	}
	return false
}
