package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"
)

func TestIMAPFetcherProcessesAndMarksSeen(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []imap.UID{11, 12},
		bodies: map[imap.UID][]byte{
			11: []byte("first"),
			12: []byte("second"),
		},
		internalDate: map[imap.UID]time.Time{
			11: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	h := &recordingHandler{}
	f := NewIMAPFetcher(
		WithIMAPClock(func() time.Time { return now }),
		withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }),
	)

	acc := Account{Host: "mail.example", Username: "agent", Password: []byte("secret"), Folder: "INBOX"}
	processed, err := f.Fetch(context.Background(), acc, h)
	require.NoError(t, err)
	require.Equal(t, 2, processed)

	require.Equal(t, []imap.UID{11, 12}, client.seenUIDs)
	require.Equal(t, 1, client.logoutCalls)
	require.Len(t, h.messages, 2)
	require.Equal(t, "11", h.messages[0].UID)
	require.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), h.messages[0].ReceivedAt)
	require.Equal(t, now, h.messages[1].ReceivedAt)
}

func TestIMAPFetcherContainsHandlerErrors(t *testing.T) {
	client := &fakeIMAPClient{
		uids:   []imap.UID{11, 12},
		bodies: map[imap.UID][]byte{11: []byte("first"), 12: []byte("second")},
	}
	h := &recordingHandler{failUID: "11"}
	f := NewIMAPFetcher(withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }))

	acc := Account{Host: "mail.example", Username: "agent", Password: []byte("secret")}
	processed, err := f.Fetch(context.Background(), acc, h)
	require.NoError(t, err)
	require.Equal(t, 2, processed)

	// The failing message is still marked read and the next one still runs.
	require.Equal(t, []imap.UID{11, 12}, client.seenUIDs)
	require.Len(t, h.messages, 2)
}

func TestIMAPFetcherEmptyMailboxSkipsPreflight(t *testing.T) {
	client := &fakeIMAPClient{}
	preflights := 0
	f := NewIMAPFetcher(
		WithIMAPPreflight(func(context.Context, int) error { preflights++; return nil }),
		withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }),
	)
	acc := Account{Host: "mail.example", Username: "u", Password: []byte("p")}
	processed, err := f.Fetch(context.Background(), acc, &recordingHandler{})
	require.NoError(t, err)
	require.Zero(t, processed)
	require.Zero(t, preflights)
	require.Zero(t, client.storeCalls)
	require.Equal(t, 1, client.logoutCalls)
}

func TestIMAPFetcherPreflightFailureAbortsBeforeFetch(t *testing.T) {
	client := &fakeIMAPClient{
		uids:   []imap.UID{11},
		bodies: map[imap.UID][]byte{11: []byte("body")},
	}
	h := &recordingHandler{}
	f := NewIMAPFetcher(
		WithIMAPPreflight(func(_ context.Context, unread int) error {
			require.Equal(t, 1, unread)
			return errors.New("token expired")
		}),
		withIMAPClientFactory(func(Account) (imapClient, error) { return client, nil }),
	)

	acc := Account{Host: "mail.example", Username: "u", Password: []byte("p")}
	_, err := f.Fetch(context.Background(), acc, h)
	require.ErrorContains(t, err, "remote store check")
	require.Zero(t, client.fetchCalls)
	require.Zero(t, client.storeCalls)
	require.Empty(t, h.messages)
}

func TestIMAPFetcherValidation(t *testing.T) {
	cases := []Account{
		{Host: "mail.example", Password: []byte("pw")},
		{Host: "mail.example", Username: "user"},
	}
	f := NewIMAPFetcher()
	for _, acc := range cases {
		if _, err := f.Fetch(context.Background(), acc, &recordingHandler{}); err == nil {
			t.Fatalf("expected validation error for account %+v", acc)
		}
	}
}

func TestIMAPFetcherRequiresHandler(t *testing.T) {
	f := NewIMAPFetcher()
	acc := Account{Host: "mail.example", Username: "u", Password: []byte("p")}
	if _, err := f.Fetch(context.Background(), acc, nil); err == nil {
		t.Fatalf("expected handler required error")
	}
}

func TestIMAPFetcherAuthAndSelectErrors(t *testing.T) {
	f := NewIMAPFetcher(withIMAPClientFactory(func(Account) (imapClient, error) {
		return &fakeIMAPClient{loginErr: errors.New("bad creds")}, nil
	}))
	acc := Account{Host: "mail.example", Username: "u", Password: []byte("p")}
	_, err := f.Fetch(context.Background(), acc, &recordingHandler{})
	require.ErrorContains(t, err, "imap auth")

	f = NewIMAPFetcher(withIMAPClientFactory(func(Account) (imapClient, error) {
		return &fakeIMAPClient{selectErr: errors.New("no inbox")}, nil
	}))
	_, err = f.Fetch(context.Background(), acc, &recordingHandler{})
	require.ErrorContains(t, err, "imap select")
}

func TestIMAPFetcherConnectErrorWrapped(t *testing.T) {
	f := NewIMAPFetcher(withIMAPClientFactory(func(Account) (imapClient, error) {
		return nil, errors.New("dial failed")
	}))
	acc := Account{Host: "mail.example", Username: "u", Password: []byte("p")}
	_, err := f.Fetch(context.Background(), acc, &recordingHandler{})
	require.ErrorContains(t, err, "imap connect")
}

type recordingHandler struct {
	messages []*FetchedMessage
	failUID  string
}

func (h *recordingHandler) Handle(_ context.Context, msg *FetchedMessage) error {
	h.messages = append(h.messages, msg)
	if h.failUID != "" && msg.UID == h.failUID {
		return errors.New("handler failure")
	}
	return nil
}

type fakeIMAPClient struct {
	uids         []imap.UID
	bodies       map[imap.UID][]byte
	internalDate map[imap.UID]time.Time

	loginErr  error
	selectErr error
	searchErr error
	fetchErr  error
	storeErr  error
	logoutErr error

	seenUIDs    []imap.UID
	storeCalls  int
	fetchCalls  int
	logoutCalls int
	closed      bool
}

func (c *fakeIMAPClient) Login(_, _ string) commandWaiter { return &fakeCommand{err: c.loginErr} }
func (c *fakeIMAPClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{err: c.logoutErr}
}
func (c *fakeIMAPClient) Close() error { c.closed = true; return nil }
func (c *fakeIMAPClient) Select(_ string, _ *imap.SelectOptions) selectWaiter {
	return &fakeSelect{err: c.selectErr}
}
func (c *fakeIMAPClient) UIDSearch(_ *imap.SearchCriteria, _ *imap.SearchOptions) searchWaiter {
	data := &imap.SearchData{All: imap.UIDSetNum(c.uids...)}
	return &fakeSearch{err: c.searchErr, data: data}
}
func (c *fakeIMAPClient) Fetch(_ imap.NumSet, _ *imap.FetchOptions) fetchWaiter {
	c.fetchCalls++
	var bufs []*imapclient.FetchMessageBuffer
	if c.fetchErr == nil {
		for _, uid := range c.uids {
			bufs = append(bufs, &imapclient.FetchMessageBuffer{
				SeqNum:       uint32(uid),
				UID:          uid,
				InternalDate: c.internalDate[uid],
				BodySection: []imapclient.FetchBodySectionBuffer{{
					Section: &imap.FetchItemBodySection{},
					Bytes:   append([]byte(nil), c.bodies[uid]...),
				}},
			})
		}
	}
	return &fakeFetch{err: c.fetchErr, bufs: bufs}
}
func (c *fakeIMAPClient) Store(numSet imap.NumSet, store *imap.StoreFlags, _ *imap.StoreOptions) fetchWaiter {
	c.storeCalls++
	if store != nil {
		if uidSet, ok := numSet.(imap.UIDSet); ok {
			for _, rng := range uidSet {
				c.seenUIDs = append(c.seenUIDs, rng.Start)
			}
		}
	}
	return &fakeFetch{err: c.storeErr}
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*imap.SelectData, error) { return nil, s.err }

type fakeSearch struct {
	err  error
	data *imap.SearchData
}

func (s *fakeSearch) Wait() (*imap.SearchData, error) { return s.data, s.err }

type fakeFetch struct {
	err  error
	bufs []*imapclient.FetchMessageBuffer
}

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, f.err }
func (f *fakeFetch) Close() error                                       { return f.err }
