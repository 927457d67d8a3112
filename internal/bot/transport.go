package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_bot/internal/model"
	"media_bot/internal/task"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport moves media through the Bot API: file downloads, forwards and
// re-uploads. It implements task.Downloader and task.Forwarder.
type Transport struct {
	api    telegramAPI
	client HTTPClient
	log    *slog.Logger
}

// NewTransport creates a Transport downloading files with client.
func NewTransport(api telegramAPI, client HTTPClient, log *slog.Logger) *Transport {
	return &Transport{api: api, client: client, log: log}
}

// Download retrieves the media of msg to dest. Bytes are written to a
// temporary file that is renamed into place once complete.
func (t *Transport) Download(ctx context.Context, msg model.Message, dest string, progress func(written int64)) (int64, error) {
	if !msg.HasMedia() {
		return 0, fmt.Errorf("message %d has no media", msg.ID)
	}
	url, err := t.fileURL(msg.Media)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, classify(fmt.Errorf("http get: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return 0, fmt.Errorf("http get: status %d: %w", resp.StatusCode, task.ErrReferenceExpired)
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("http get: status %d: %w", resp.StatusCode, task.ErrTimeout)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("http get: unexpected status %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp) //nolint:gosec // path built from sanitized names
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	n, copyErr := io.Copy(f, &progressReader{r: resp.Body, fn: progress})
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return n, classify(fmt.Errorf("read body: %w", copyErr))
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("close file: %w", closeErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("rename file: %w", err)
	}
	return n, nil
}

// Forward relays a message without downloading it.
func (t *Transport) Forward(_ context.Context, fromChat, toChat, msgID int64) error {
	if _, err := t.api.Send(tgbotapi.NewForward(toChat, fromChat, int(msgID))); err != nil {
		return classify(err)
	}
	return nil
}

// SendFile uploads a local file to a chat as a document.
func (t *Transport) SendFile(_ context.Context, toChat int64, path, caption string) error {
	doc := tgbotapi.NewDocument(toChat, tgbotapi.FilePath(path))
	doc.Caption = caption
	if _, err := t.api.Send(doc); err != nil {
		return classify(err)
	}
	return nil
}

// fileURL resolves the download URL of media: the Bot API file link for
// captured messages, the enclosure URL for mirrored feed items.
func (t *Transport) fileURL(md *model.Media) (string, error) {
	if md.FileID != "" {
		url, err := t.api.GetFileDirectURL(md.FileID)
		if err != nil {
			return "", classify(fmt.Errorf("get file: %w", err))
		}
		return url, nil
	}
	if md.URL != "" {
		return md.URL, nil
	}
	return "", fmt.Errorf("media has neither file id nor url")
}

// classify wraps err with the task sentinel matching its cause.
func classify(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		msg := strings.ToLower(tgErr.Message)
		switch {
		case tgErr.Code == http.StatusTooManyRequests || tgErr.RetryAfter > 0:
			return fmt.Errorf("%w: %w", task.ErrTimeout, err)
		case strings.Contains(msg, "wrong file_id"),
			strings.Contains(msg, "file reference"),
			strings.Contains(msg, "temporarily unavailable"):
			return fmt.Errorf("%w: %w", task.ErrReferenceExpired, err)
		case strings.Contains(msg, "can't be forwarded"),
			strings.Contains(msg, "protected"),
			strings.Contains(msg, "have no rights"):
			return fmt.Errorf("%w: %w", task.ErrForwardRestricted, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", task.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", task.ErrTimeout, err)
	}
	return err
}

type progressReader struct {
	r       io.Reader
	fn      func(int64)
	written int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.written += int64(n)
		if p.fn != nil {
			p.fn(p.written)
		}
	}
	return n, err
}
