package webhook

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/relaydrop-io/relaydrop/internal/relay"
	"github.com/relaydrop-io/relaydrop/internal/whatsapp"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Processor handles one dispatched platform message at a time: cutoff
// check, kind dispatch, media resolution, relay. Failures terminate the
// message's handling and are narrated; nothing is retried.
type Processor struct {
	relay    *relay.Relay
	media    whatsapp.MediaFetcher
	startAt  time.Time
	simulate bool
	logger   *log.Logger
}

// ProcessorOption customizes the processor.
type ProcessorOption func(*Processor)

// NewProcessor builds a message processor. startAt is the process-start
// cutoff: messages stamped earlier are discarded, which is the only dedup
// signal this channel has.
func NewProcessor(r *relay.Relay, media whatsapp.MediaFetcher, startAt time.Time, opts ...ProcessorOption) *Processor {
	p := &Processor{
		relay:   r,
		media:   media,
		startAt: startAt,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// WithSimulation short-circuits media resolution and upload, narrating
// what would have happened instead. Used by the debug toggle.
func WithSimulation(simulate bool) ProcessorOption {
	return func(p *Processor) { p.simulate = simulate }
}

// WithProcessorLogger overrides the logger used for narration.
func WithProcessorLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Process inspects one message record and relays its media if it
// qualifies. Errors never escape: the HTTP request that delivered the
// message has long since completed.
func (p *Processor) Process(ctx context.Context, msg Message) {
	if ts := msg.Time(); ts.Before(p.startAt) {
		p.logger.Printf("webhook: message from %s predates process start, discarding", msg.From)
		return
	}

	p.logger.Printf("webhook: new %s message from %s", msg.Type, msg.From)

	switch msg.Type {
	case "image":
		if msg.Image == nil || msg.Image.ID == "" {
			p.logger.Printf("webhook: image message carries no media id, skipping")
			return
		}
		if msg.Image.Caption != "" {
			p.logger.Printf("webhook: image caption: %s", msg.Image.Caption)
		}
		filename := fmt.Sprintf("whatsapp_image_%s.jpg", msg.Image.ID)
		p.relayMedia(ctx, msg.Image.ID, filename)

	case "document":
		if msg.Document == nil || msg.Document.ID == "" {
			p.logger.Printf("webhook: document message carries no media id, skipping")
			return
		}
		filename := msg.Document.Filename
		if filename == "" {
			filename = fmt.Sprintf("whatsapp_document_%s", msg.Document.ID)
		}
		if !acceptedDocument(msg.Document.MimeType, filename) {
			p.logger.Printf("webhook: unsupported document type %q (%s), skipping", msg.Document.MimeType, filename)
			return
		}
		p.relayMedia(ctx, msg.Document.ID, filename)

	default:
		p.logger.Printf("webhook: unsupported message type %q, skipping", msg.Type)
	}
}

func (p *Processor) relayMedia(ctx context.Context, mediaID, filename string) {
	if p.simulate {
		p.logger.Printf("webhook: simulation mode, would download %s and upload %s", mediaID, filename)
		return
	}

	url, err := p.media.MediaURL(ctx, mediaID)
	if err != nil {
		p.logger.Printf("webhook: %s for %s: %v", relay.ResultDownloadFailed, filename, err)
		return
	}
	data, err := p.media.Download(ctx, url)
	if err != nil {
		p.logger.Printf("webhook: %s for %s: %v", relay.ResultDownloadFailed, filename, err)
		return
	}

	receipt, err := p.relay.Send(ctx, relay.Attachment{Filename: filename, Data: data})
	if err != nil {
		p.logger.Printf("webhook: %s for %s: %v", receipt.Result, filename, err)
		return
	}
	p.logger.Printf("webhook: uploaded %s", receipt.RemotePath)
}

// acceptedDocument reports whether a document message qualifies for relay:
// PDFs always, images by declared MIME type or filename extension.
func acceptedDocument(mimeType, filename string) bool {
	mimeType = strings.ToLower(mimeType)
	ext := strings.ToLower(filepath.Ext(filename))
	if mimeType == "application/pdf" || ext == ".pdf" {
		return true
	}
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	for _, imgExt := range imageExtensions {
		if ext == imgExt {
			return true
		}
	}
	return false
}
