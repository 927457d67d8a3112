// Package fetcher mirrors a channel published as an RSS/Atom feed into the
// message archive, so its media can be drained like a captured chat.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"media_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Saver stores converted messages.
type Saver interface {
	SaveMessage(ctx context.Context, msg model.Message) error
}

// Fetcher downloads and parses channel feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses a feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "MediaBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Sync fetches the feed and archives every item as a message of chatID.
// Items without a numeric post id are skipped. It returns how many were saved.
func (f *Fetcher) Sync(ctx context.Context, store Saver, chatID int64, feedURL string) (int, error) {
	feed, err := f.Fetch(ctx, feedURL)
	if err != nil {
		return 0, err
	}
	saved := 0
	for _, item := range feed.Items {
		msg, ok := ToMessage(chatID, item)
		if !ok {
			continue
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			return saved, fmt.Errorf("save message %d: %w", msg.ID, err)
		}
		saved++
	}
	return saved, nil
}

// ToMessage converts a feed item to a message. The message id is the last
// numeric path segment of the item link (t.me/<channel>/<id>) or its GUID.
func ToMessage(chatID int64, item *gofeed.Item) (model.Message, bool) {
	id, ok := postID(item.Link)
	if !ok {
		id, ok = postID(item.GUID)
	}
	if !ok {
		return model.Message{}, false
	}

	msg := model.Message{
		ChatID:  chatID,
		ID:      id,
		Caption: strings.TrimSpace(item.Title),
	}
	if msg.Caption == "" {
		msg.Caption = strings.TrimSpace(item.Description)
	}
	if item.PublishedParsed != nil {
		msg.Date = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		msg.Date = item.UpdatedParsed.UTC()
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		msg.Sender = item.Authors[0].Name
	}
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		msg.Media = enclosureMedia(item.Enclosures[0])
	}
	return msg, true
}

func enclosureMedia(enc *gofeed.Enclosure) *model.Media {
	md := &model.Media{
		Kind:     kindOf(enc.Type),
		URL:      enc.URL,
		MimeType: enc.Type,
	}
	if u, err := url.Parse(enc.URL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			md.FileName = base
		}
	}
	if md.FileName == "" {
		if exts, _ := mime.ExtensionsByType(enc.Type); len(exts) > 0 {
			md.FileName = "file" + exts[0]
		}
	}
	if n, err := strconv.ParseInt(enc.Length, 10, 64); err == nil && n > 0 {
		md.FileSize = &n
	}
	return md
}

func kindOf(mimeType string) model.MediaKind {
	switch {
	case mimeType == "image/gif":
		return model.MediaAnimation
	case strings.HasPrefix(mimeType, "image/"):
		return model.MediaPhoto
	case strings.HasPrefix(mimeType, "video/"):
		return model.MediaVideo
	case mimeType == "audio/ogg":
		return model.MediaVoice
	case strings.HasPrefix(mimeType, "audio/"):
		return model.MediaAudio
	default:
		return model.MediaDocument
	}
}

func postID(link string) (int64, bool) {
	if link == "" {
		return 0, false
	}
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		link = u.Path
	}
	id, err := strconv.ParseInt(path.Base(strings.TrimSuffix(link, "/")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
