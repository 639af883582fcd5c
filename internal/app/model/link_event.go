package model

import "time"

// LinkEventType names a link lifecycle transition.
type LinkEventType string

const (
	LinkCreated LinkEventType = "created"
	LinkClicked LinkEventType = "clicked"
	LinkDeleted LinkEventType = "deleted"
)

// LinkEvent is published on NATS whenever a link changes.
type LinkEvent struct {
	ID         string        `json:"id"`
	Type       LinkEventType `json:"type"`
	ShortCode  string        `json:"short_code"`
	LongURL    string        `json:"long_url,omitempty"`
	ClickCount int64         `json:"click_count"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Subject returns the JetStream subject the event is published on.
func (e LinkEvent) Subject() string {
	return LinkStreamSubjectPrefix + string(e.Type)
}

const (
	LinkStreamName          = "LINKS"
	LinkStreamSubjectPrefix = "links."
	LinkStreamSubjects      = "links.>"
	LinkStreamMaxBytes      = 1024 * 1024 * 100 // 100MB
)
