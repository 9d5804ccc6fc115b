package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

// Downloader fetches a provider media URL with provider credentials.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Attachment describes an inbound media reference.
type Attachment struct {
	ConversationID string
	Kind           model.MessageKind
	URL            string
	// Name is the provider media id or the document filename.
	Name string
	Mime string
}

// Fetcher downloads attachments and stores them for public access.
type Fetcher struct {
	downloader Downloader
	storage    StorageProvider
	timeout    time.Duration
}

// NewFetcher creates a fetcher. A zero timeout leaves the download unbounded
// beyond the downloader's own limits.
func NewFetcher(downloader Downloader, storage StorageProvider, timeout time.Duration) *Fetcher {
	return &Fetcher{downloader: downloader, storage: storage, timeout: timeout}
}

// Fetch downloads the attachment and returns its public URL.
func (f *Fetcher) Fetch(ctx context.Context, att Attachment) (string, error) {
	if f.downloader == nil {
		return "", ErrNoDownloader
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	data, err := f.downloader.Download(ctx, att.URL)
	if err != nil {
		metrics.MediaDownloads.WithLabelValues(string(att.Kind), "error").Inc()
		return "", fmt.Errorf("failed to download media: %w", err)
	}

	key := StorageKey(att)
	if err := f.storage.Put(ctx, key, bytes.NewReader(data)); err != nil {
		metrics.MediaDownloads.WithLabelValues(string(att.Kind), "error").Inc()
		return "", fmt.Errorf("failed to store media: %w", err)
	}

	metrics.MediaDownloads.WithLabelValues(string(att.Kind), "ok").Inc()
	metrics.MediaBytes.Add(float64(len(data)))
	return f.storage.AccessPath(key), nil
}

// StorageKey returns "whatsapp/<conversation>/<kind>_<name>[.<ext>]".
func StorageKey(att Attachment) string {
	base := att.Name
	if base == "" {
		base = uuid.NewString()
	}
	base = strings.NewReplacer("/", "_", "\\", "_").Replace(base)

	kind := string(att.Kind)
	if kind == "" {
		kind = "file"
	}

	name := kind + "_" + base
	if ext := Extension(att.Kind, att.Mime); ext != "" && !strings.Contains(base, ".") {
		name += "." + ext
	}
	return "whatsapp/" + att.ConversationID + "/" + name
}

// Extension derives a file extension from a MIME type. Parameters are ignored
// and audio without a MIME type defaults to ogg.
func Extension(kind model.MessageKind, mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" {
		return sub
	}
	if kind == model.KindAudio {
		return "ogg"
	}
	return ""
}
