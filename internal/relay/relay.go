package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Result describes the outcome of one attachment's journey.
type Result string

const (
	ResultUploaded       Result = "uploaded"
	ResultUploadFailed   Result = "upload-failed"
	ResultDownloadFailed Result = "download-failed"
	ResultSkipped        Result = "skipped"
)

// Attachment is a fully materialized candidate file extracted from an
// inbound item. Filename is untrusted and sanitized before any use.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Uploader persists bytes at a remote path, overwriting on conflict.
type Uploader interface {
	Upload(ctx context.Context, remotePath string, data []byte) error
}

// Receipt reports where one relayed attachment ended up.
type Receipt struct {
	Result     Result
	Name       string
	LocalPath  string
	RemotePath string
}

// Relay moves attachment payloads through local scratch storage into the
// remote store. One instance per channel; channels differ only in naming
// and local-copy retention policy.
type Relay struct {
	uploader     Uploader
	remoteFolder string
	scratchDir   string
	channel      string
	stampNames   bool
	keepLocal    bool
	now          func() time.Time
	logger       *log.Logger
}

// Option customizes relay behavior.
type Option func(*Relay)

// New builds a relay for one channel. The scratch directory is namespaced
// by the channel name so concurrent channels never share attempt files.
func New(uploader Uploader, remoteFolder, scratchDir, channel string, opts ...Option) *Relay {
	r := &Relay{
		uploader:     uploader,
		remoteFolder: remoteFolder,
		scratchDir:   scratchDir,
		channel:      channel,
		now:          func() time.Time { return time.Now() },
		logger:       log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// WithStampedNames appends a second-granularity timestamp to every derived
// name, before the extension.
func WithStampedNames(stamp bool) Option {
	return func(r *Relay) { r.stampNames = stamp }
}

// WithKeepLocal retains the scratch copy after a successful upload.
func WithKeepLocal(keep bool) Option {
	return func(r *Relay) { r.keepLocal = keep }
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Send writes the attachment to scratch storage and uploads it to the
// remote folder. Upload failure retains the scratch file and is returned
// to the caller; nothing is retried.
func (r *Relay) Send(ctx context.Context, att Attachment) (*Receipt, error) {
	if len(att.Data) == 0 {
		return &Receipt{Result: ResultSkipped}, errors.New("attachment has no payload")
	}

	name := SafeName(att.Filename)
	if r.stampNames {
		name = StampedName(att.Filename, r.now())
	}

	dir := filepath.Join(r.scratchDir, r.channel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &Receipt{Result: ResultUploadFailed, Name: name}, fmt.Errorf("create scratch dir: %w", err)
	}
	localPath := filepath.Join(dir, name)
	if err := os.WriteFile(localPath, att.Data, 0644); err != nil {
		return &Receipt{Result: ResultUploadFailed, Name: name}, fmt.Errorf("write scratch file: %w", err)
	}

	remotePath := path.Join(r.remoteFolder, name)
	receipt := &Receipt{Name: name, LocalPath: localPath, RemotePath: remotePath}

	if err := r.uploader.Upload(ctx, remotePath, att.Data); err != nil {
		receipt.Result = ResultUploadFailed
		r.logger.Printf("relay %s: upload failed for %s, local copy kept at %s: %v", r.channel, name, localPath, err)
		return receipt, fmt.Errorf("upload %s: %w", remotePath, err)
	}

	receipt.Result = ResultUploaded
	if !r.keepLocal {
		if err := os.Remove(localPath); err != nil {
			r.logger.Printf("relay %s: scratch cleanup failed for %s: %v", r.channel, localPath, err)
		} else {
			receipt.LocalPath = ""
		}
	}
	r.logger.Printf("relay %s: uploaded %s", r.channel, remotePath)
	return receipt, nil
}
