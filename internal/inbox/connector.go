package inbox

import (
	"context"
	"time"
)

// Account carries the minimal set of fields needed to open a mailbox.
type Account struct {
	Host     string
	Port     int
	Username string
	Password []byte
	Folder   string
	TLS      bool
}

// FetchedMessage wraps the on-wire RFC822 payload plus derived metadata.
type FetchedMessage struct {
	UID        string
	Folder     string
	ReceivedAt time.Time
	SizeBytes  int64
	Raw        []byte
}

// Handler receives fully fetched messages. A handler error is contained to
// that message: the fetcher reports it and the message is still marked read.
type Handler interface {
	Handle(ctx context.Context, msg *FetchedMessage) error
}

// PreflightFunc runs once per pass, after the unread listing turns up work
// but before any message body is fetched. An error aborts the pass with
// every message left unread.
type PreflightFunc func(ctx context.Context, unread int) error
