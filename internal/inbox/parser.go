package inbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/relaydrop-io/relaydrop/internal/relay"
	htmlcharset "golang.org/x/net/html/charset"
)

const defaultAttachmentLimit = 25 * 1024 * 1024

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// Envelope is the parsed view of one inbound email: sender and subject for
// narration, attachments fully materialized for relay.
type Envelope struct {
	From        string
	Subject     string
	Attachments []relay.Attachment
}

// Parser walks an RFC822 message's part tree and collects attachment parts.
type Parser struct {
	attachmentLimit int64
}

// NewParser returns a parser with the default attachment size cap.
func NewParser() *Parser {
	return &Parser{attachmentLimit: defaultAttachmentLimit}
}

// WithAttachmentLimit caps the bytes buffered per attachment.
func (p *Parser) WithAttachmentLimit(limit int64) *Parser {
	if limit > 0 {
		p.attachmentLimit = limit
	}
	return p
}

// Parse reads the raw message and extracts every part flagged as an
// attachment. Inline parts (message bodies) are ignored.
func (p *Parser) Parse(raw []byte) (*Envelope, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}

	env := &Envelope{}
	if subject, err := reader.Header.Subject(); err == nil {
		env.Subject = subject
	}
	if addrs, err := reader.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		env.From = addrs[0].String()
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A broken part should not discard attachments already read.
			break
		}
		header, ok := part.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}
		att := p.extractAttachment(part, header)
		if att != nil {
			env.Attachments = append(env.Attachments, *att)
		}
	}

	return env, nil
}

func (p *Parser) extractAttachment(part *gomail.Part, header *gomail.AttachmentHeader) *relay.Attachment {
	filename, err := header.Filename()
	if err != nil || strings.TrimSpace(filename) == "" {
		filename = fmt.Sprintf("attachment-%s.bin", uuid.NewString())
	}
	contentType, _, ctErr := header.ContentType()
	if ctErr != nil || strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	data, readErr := io.ReadAll(io.LimitReader(part.Body, p.attachmentLimit))
	if readErr != nil || len(data) == 0 {
		return nil
	}
	return &relay.Attachment{
		Filename:    filename,
		ContentType: strings.ToLower(strings.TrimSpace(contentType)),
		Data:        data,
	}
}
