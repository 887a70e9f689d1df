package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// IMAPFetcher drains the unread portion of an IMAP mailbox in one bounded
// pass. Each message is marked read after its handler returns, success or
// failure, so it is never revisited.
type IMAPFetcher struct {
	dialTimeout time.Duration
	now         func() time.Time
	logger      *log.Logger
	preflight   PreflightFunc
	newClient   func(Account) (imapClient, error)
}

// IMAPFetcherOption customizes fetcher behavior.
type IMAPFetcherOption func(*IMAPFetcher)

// NewIMAPFetcher returns an IMAP connector ready for a polling pass.
func NewIMAPFetcher(opts ...IMAPFetcherOption) *IMAPFetcher {
	f := &IMAPFetcher{
		dialTimeout: 5 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.Default(),
	}
	f.newClient = f.defaultClientFactory
	for _, opt := range opts {
		opt(f)
	}
	if f.newClient == nil {
		f.newClient = f.defaultClientFactory
	}
	return f
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

// WithIMAPPreflight installs a check that runs once when the unread listing
// is non-empty, before any message is fetched. Used to verify the remote
// store session so a dead token aborts the pass with nothing marked read.
func WithIMAPPreflight(preflight PreflightFunc) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		f.preflight = preflight
	}
}

// WithIMAPClock overrides the wall clock, primarily for tests.
func WithIMAPClock(now func() time.Time) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func withIMAPClientFactory(factory func(Account) (imapClient, error)) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		f.newClient = factory
	}
}

// Name returns the connector identifier.
func (f *IMAPFetcher) Name() string {
	return "imap"
}

// Fetch lists unread messages and hands each to the handler in listing
// order. Returns the number of messages processed.
func (f *IMAPFetcher) Fetch(ctx context.Context, account Account, handler Handler) (int, error) {
	if handler == nil {
		return 0, errors.New("imap fetcher requires a handler")
	}
	if err := validateAccount(account); err != nil {
		return 0, err
	}

	client, err := f.newClient(account)
	if err != nil {
		return 0, fmt.Errorf("imap connect: %w", err)
	}
	defer f.safeClose(client)

	if err := client.Login(account.Username, string(account.Password)).Wait(); err != nil {
		return 0, fmt.Errorf("imap auth: %w", err)
	}

	mailbox := account.Folder
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return 0, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		if err := client.Logout().Wait(); err != nil {
			return 0, fmt.Errorf("imap logout: %w", err)
		}
		return 0, nil
	}

	if f.preflight != nil {
		if err := f.preflight(ctx, len(uids)); err != nil {
			return 0, fmt.Errorf("remote store check: %w", err)
		}
	}

	uidSet := imap.UIDSetNum(uids...)
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{}},
	}
	fetchBuffers, err := client.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return 0, fmt.Errorf("imap fetch: %w", err)
	}

	processed := 0
	for _, buf := range fetchBuffers {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		uidStr := fmt.Sprintf("%d", buf.UID)
		if body != nil {
			received := buf.InternalDate
			if received.IsZero() {
				received = f.now()
			}
			msg := &FetchedMessage{
				UID:        uidStr,
				Folder:     mailbox,
				ReceivedAt: received,
				SizeBytes:  int64(len(body)),
				Raw:        append([]byte(nil), body...),
			}
			if err := handler.Handle(ctx, msg); err != nil {
				f.logger.Printf("inbox: message %s failed: %v", uidStr, err)
			}
		} else {
			f.logger.Printf("inbox: message %s has no body section, skipping", uidStr)
		}
		// Read flag is the sole dedup mechanism for this channel, so it is
		// set unconditionally once the message has had its chance.
		if err := f.markSeen(client, buf.UID); err != nil {
			f.logger.Printf("inbox: mark seen failed for %s: %v", uidStr, err)
		}
		processed++
	}

	if err := client.Logout().Wait(); err != nil {
		return processed, fmt.Errorf("imap logout: %w", err)
	}

	return processed, nil
}

func (f *IMAPFetcher) markSeen(client imapClient, uid imap.UID) error {
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagSeen}}
	return client.Store(imap.UIDSetNum(uid), store, nil).Close()
}

func (f *IMAPFetcher) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && f.logger != nil {
		f.logger.Printf("imap close error: %v", err)
	}
}

func (f *IMAPFetcher) defaultClientFactory(account Account) (imapClient, error) {
	if account.Host == "" {
		return nil, errors.New("imap account missing host")
	}
	port := account.Port
	if port == 0 {
		if account.TLS {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: f.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", account.Host, port)
	var client *imapclient.Client
	var err error
	if account.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}

func validateAccount(account Account) error {
	if account.Username == "" {
		return errors.New("imap account missing username")
	}
	if len(account.Password) == 0 {
		return errors.New("imap account missing password")
	}
	return nil
}
