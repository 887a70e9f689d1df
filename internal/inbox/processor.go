package inbox

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/relaydrop-io/relaydrop/internal/relay"
)

// Summary captures per-run counters for the end-of-pass report.
type Summary struct {
	Messages int
	Matched  int
	Uploaded int
	Failed   int
}

// Processor turns fetched messages into relay attempts. Only attachments
// whose filename carries the target extension qualify; each qualifying
// attachment is relayed independently, so one failure never blocks the
// rest of the message or the rest of the run.
type Processor struct {
	relay     *relay.Relay
	parser    *Parser
	targetExt string
	logger    *log.Logger
	summary   Summary
}

// ProcessorOption customizes the processor.
type ProcessorOption func(*Processor)

// NewProcessor builds a processor relaying PDF attachments by default.
func NewProcessor(r *relay.Relay, opts ...ProcessorOption) *Processor {
	p := &Processor{
		relay:     r,
		parser:    NewParser(),
		targetExt: ".pdf",
		logger:    log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// WithProcessorLogger overrides the logger used for narration.
func WithProcessorLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProcessorTargetExt changes the attachment extension filter.
func WithProcessorTargetExt(ext string) ProcessorOption {
	return func(p *Processor) {
		if ext != "" {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			p.targetExt = strings.ToLower(ext)
		}
	}
}

// WithProcessorParser overrides the message parser.
func WithProcessorParser(parser *Parser) ProcessorOption {
	return func(p *Processor) {
		if parser != nil {
			p.parser = parser
		}
	}
}

// Handle parses one message and relays its qualifying attachments.
func (p *Processor) Handle(ctx context.Context, msg *FetchedMessage) error {
	p.summary.Messages++

	env, err := p.parser.Parse(msg.Raw)
	if err != nil {
		return fmt.Errorf("parse message %s: %w", msg.UID, err)
	}

	p.logger.Printf("inbox: processing message from %s, subject %q", orUnknown(env.From), env.Subject)

	matched := 0
	for _, att := range env.Attachments {
		if !strings.HasSuffix(strings.ToLower(att.Filename), p.targetExt) {
			continue
		}
		matched++
		p.summary.Matched++
		receipt, sendErr := p.relay.Send(ctx, att)
		if sendErr != nil {
			p.summary.Failed++
			p.logger.Printf("inbox: relay failed for %s: %v", att.Filename, sendErr)
			continue
		}
		p.summary.Uploaded++
		p.logger.Printf("inbox: uploaded %s (local copy at %s)", receipt.RemotePath, receipt.LocalPath)
	}

	if matched == 0 {
		p.logger.Printf("inbox: message %s has no %s attachments, marking read", msg.UID, p.targetExt)
	}
	return nil
}

// Summary returns the counters accumulated so far.
func (p *Processor) Summary() Summary {
	return p.summary
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown sender"
	}
	return s
}
