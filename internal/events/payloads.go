package events

import "time"

// Payload shapes for the enumerated routing keys. The fabric treats
// payloads as opaque on the wire; these types exist for the publishers
// and the notification consumer, which own both ends.

// MatchCreated is published by discovery when a mutual like produces a
// match. user_id_1 is always the smaller id: the pair is normalized so
// two racing likes produce one match.
type MatchCreated struct {
	UserID1         int64     `json:"user_id_1"`
	UserID2         int64     `json:"user_id_2"`
	MatchedAt       time.Time `json:"matched_at"`
	InteractionType string    `json:"interaction_type"`
}

// MessageSent is published by chat on a new (non-replayed) insert.
type MessageSent struct {
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	MessageID      int64     `json:"message_id"`
	SentAt         time.Time `json:"sent_at"`
}

// MessageRead is published by chat when a participant advances their read
// cursor.
type MessageRead struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	UpToMessageID  int64 `json:"up_to_message_id"`
}

// UserBlocked is published by chat.
type UserBlocked struct {
	BlockerID int64 `json:"blocker_id"`
	BlockedID int64 `json:"blocked_id"`
}

// ReportCreated is published by chat and discovery report endpoints.
type ReportCreated struct {
	ReportID       int64  `json:"report_id"`
	ReporterID     int64  `json:"reporter_id"`
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id,omitempty"`
	Reason         string `json:"reason"`
}
