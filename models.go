package main

import "time"

// LogRecord is one logged channel message. Records are immutable once written.
type LogRecord struct {
	AuthorID  string
	MessageID string // Slack client_msg_id, unique per message
	Text      string
	ChannelID string
	Timestamp time.Time // second precision
}

// RecordFilter narrows a store lookup. Zero-value fields are ignored;
// the time range is half-open [From, To).
type RecordFilter struct {
	AuthorID  string
	ChannelID string
	From      time.Time
	To        time.Time
}
