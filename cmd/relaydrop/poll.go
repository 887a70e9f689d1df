package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/relaydrop-io/relaydrop/internal/config"
	"github.com/relaydrop-io/relaydrop/internal/dropbox"
	"github.com/relaydrop-io/relaydrop/internal/inbox"
	"github.com/relaydrop-io/relaydrop/internal/relay"
	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one pass over the unread inbox and relay PDF attachments",
	Long: `Poll connects to the configured IMAP mailbox, lists unread messages,
relays every PDF attachment to Dropbox, and marks each message read so it
is not revisited on the next run. The process exits after one pass.`,
	RunE: runPoll,
}

func runPoll(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Get()
	if err := cfg.Validate("inbox"); err != nil {
		return err
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	logger.Printf("inbox poll starting, looking for unread messages with PDF attachments")

	dbx := dropbox.NewClient(cfg.Dropbox.Token)
	r := relay.New(dbx, cfg.Dropbox.Folder, scratchDir(cfg), "email",
		relay.WithKeepLocal(true),
		relay.WithLogger(logger),
	)
	processor := inbox.NewProcessor(r, inbox.WithProcessorLogger(logger))
	fetcher := inbox.NewIMAPFetcher(
		inbox.WithIMAPLogger(logger),
		inbox.WithIMAPDialTimeout(cfg.IMAP.DialTimeout),
		inbox.WithIMAPPreflight(func(ctx context.Context, unread int) error {
			logger.Printf("found %d unread messages, verifying Dropbox session", unread)
			return dbx.Verify(ctx)
		}),
	)

	account := inbox.Account{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: []byte(cfg.IMAP.Password),
		Folder:   cfg.IMAP.Folder,
		TLS:      cfg.IMAP.TLS,
	}

	processed, err := fetcher.Fetch(cmd.Context(), account, processor)
	if err != nil {
		return err
	}

	if processed == 0 {
		logger.Printf("no unread messages, nothing to do")
		return nil
	}

	sum := processor.Summary()
	logger.Printf("run complete: %d emails processed, %d PDFs found, %d uploaded, %d failed",
		processed, sum.Matched, sum.Uploaded, sum.Failed)
	return nil
}

func scratchDir(cfg *config.Config) string {
	if cfg.Relay.ScratchDir != "" {
		return cfg.Relay.ScratchDir
	}
	return filepath.Join(os.TempDir(), "relaydrop")
}
