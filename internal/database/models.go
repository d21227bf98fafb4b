package database

import (
	"time"
)

// User is a chat participant. One record exists per chat ID; it is created
// on first contact and updated when the user shares a phone number.
type User struct {
	ID        string    `db:"id"         bson:"_id"`
	ChatID    int64     `db:"chat_id"    bson:"chat_id"`
	FirstName string    `db:"first_name" bson:"first_name"`
	Username  string    `db:"username"   bson:"username"`
	Phone     *string   `db:"phone"      bson:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" bson:"created_at"`
	UpdatedAt time.Time `db:"updated_at" bson:"updated_at"`
}

// Turn is one user message and the reply generated for it.
// Turns are never modified after insertion.
type Turn struct {
	ID             string    `db:"id"              bson:"_id"`
	ChatID         int64     `db:"chat_id"         bson:"chat_id"`
	UserMessage    string    `db:"user_message"    bson:"user_message"`
	BotReply       string    `db:"bot_reply"       bson:"bot_reply"`
	SentimentScore *float64  `db:"sentiment_score" bson:"sentiment_score,omitempty"`
	SentimentLabel *string   `db:"sentiment_label" bson:"sentiment_label,omitempty"`
	Timestamp      time.Time `db:"timestamp"       bson:"timestamp"`
}

// File is an uploaded file with its raw content. Description stays nil
// until analysis succeeds.
type File struct {
	ID          string    `db:"id"          bson:"_id"`
	ChatID      int64     `db:"chat_id"     bson:"chat_id"`
	FileName    string    `db:"file_name"   bson:"file_name"`
	MIMEType    string    `db:"mime_type"   bson:"mime_type"`
	Kind        string    `db:"kind"        bson:"kind"`
	Size        int64     `db:"size"        bson:"size"`
	Data        []byte    `db:"data"        bson:"data"`
	Description *string   `db:"description" bson:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at"  bson:"created_at"`
}
