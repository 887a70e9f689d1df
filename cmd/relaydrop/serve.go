package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaydrop-io/relaydrop/internal/config"
	"github.com/relaydrop-io/relaydrop/internal/dropbox"
	"github.com/relaydrop-io/relaydrop/internal/relay"
	"github.com/relaydrop-io/relaydrop/internal/webhook"
	"github.com/relaydrop-io/relaydrop/internal/whatsapp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WhatsApp webhook receiver",
	Long: `Serve starts the long-lived webhook endpoint. Incoming image and PDF
document messages are downloaded from the platform and relayed to Dropbox.
Only messages newer than process start are handled; there is no persistent
ledger, so platform redelivery after a restart can upload a file twice.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Load(configPath); err != nil {
		return err
	}
	cfg := config.Get()
	if err := cfg.Validate("webhook"); err != nil {
		return err
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	dbx := dropbox.NewClient(cfg.Dropbox.Token)
	verifyCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := dbx.Verify(verifyCtx); err != nil {
		return fmt.Errorf("dropbox session: %w", err)
	}
	logger.Printf("Dropbox session verified, uploads go to %s", cfg.Dropbox.Folder)

	// Captured once; the cutoff below is the webhook channel's only dedup
	// signal.
	startAt := time.Now()
	logger.Printf("process start %s, older messages will be discarded", startAt.Format(time.RFC3339))

	media := whatsapp.NewClient(cfg.WhatsApp.AccessToken, cfg.WhatsApp.APIBaseURL)
	r := relay.New(dbx, cfg.Dropbox.Folder, scratchDir(cfg), "webhook",
		relay.WithStampedNames(true),
		relay.WithLogger(logger),
	)
	processor := webhook.NewProcessor(r, media, startAt,
		webhook.WithSimulation(cfg.App.Debug),
		webhook.WithProcessorLogger(logger),
	)
	if cfg.App.Debug {
		logger.Printf("debug mode: downloads and uploads will be simulated")
	}

	dispatcher := webhook.NewDispatcher(processor, cfg.Webhook.Workers, cfg.Webhook.Queue,
		webhook.WithDispatcherLogger(logger),
	)
	defer dispatcher.Stop()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	webhook.NewServer(cfg.WhatsApp.VerifyToken, cfg.Webhook.Path, dispatcher,
		webhook.WithServerLogger(logger),
	).Register(router)

	logger.Printf("webhook listening on %s%s", cfg.Webhook.Addr(), cfg.Webhook.Path)
	return router.Run(cfg.Webhook.Addr())
}
