// Package uploader copies finished downloads to S3-compatible object storage.
package uploader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"media_bot/internal/config"
)

// Driver names accepted in the settings file.
const (
	DriverMinio = "minio"
	DriverS3    = "s3"
)

// Uploader stores a local file under key, calling progress with byte deltas.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string, progress func(delta int64)) error
}

// New creates the uploader selected by the settings. It returns nil when no
// driver is configured.
func New(ctx context.Context, s config.UploadSettings, logger *slog.Logger) (Uploader, error) {
	switch s.Driver {
	case "":
		return nil, nil
	case DriverMinio:
		m, err := NewMinio(s, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case DriverS3:
		u, err := NewS3(ctx, s, logger)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unsupported upload driver: %s", s.Driver)
	}
}

func objectKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// progressReader reports each byte of the file once, even when the client
// rewinds the body to sign or retry it.
type progressReader struct {
	f        *os.File
	pos      int64
	reported int64
	progress func(int64)
}

func openProgress(localPath string, progress func(int64)) (*progressReader, int64, error) {
	f, err := os.Open(localPath) //nolint:gosec // path produced by the orchestrator
	if err != nil {
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}
	if progress == nil {
		progress = func(int64) {}
	}
	return &progressReader{f: f, progress: progress}, info.Size(), nil
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	r.pos += int64(n)
	if r.pos > r.reported {
		r.progress(r.pos - r.reported)
		r.reported = r.pos
	}
	return n, err
}

func (r *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.f.Seek(offset, whence)
	if err == nil {
		r.pos = pos
	}
	return pos, err
}

func (r *progressReader) Close() error { return r.f.Close() }

var _ io.ReadSeekCloser = (*progressReader)(nil)
