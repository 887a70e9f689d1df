package webhook

import (
	"strconv"
	"time"
)

// Notification is the platform push payload. Only the nesting the relay
// cares about is modeled; unknown fields are ignored.
type Notification struct {
	Entry []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	Messages []Message `json:"messages"`
}

// Message is one platform message record. Timestamp arrives as epoch
// seconds in string form.
type Message struct {
	From      string    `json:"from"`
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	Image     *Media    `json:"image,omitempty"`
	Document  *Document `json:"document,omitempty"`
}

type Media struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Time parses the epoch-second timestamp. The zero time is returned for
// missing or malformed values, which the cutoff check treats as historical.
func (m Message) Time() time.Time {
	secs, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// MessageEntries flattens the payload down to the message records under
// changes with the "messages" field, in document order.
func (n Notification) MessageEntries() []Message {
	var out []Message
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			out = append(out, change.Value.Messages...)
		}
	}
	return out
}
