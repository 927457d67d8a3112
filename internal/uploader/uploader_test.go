package uploader

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"media_bot/internal/config"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	tests := []struct {
		name     string
		settings config.UploadSettings
		wantNil  bool
		wantType string
		wantErr  bool
	}{
		{name: "disabled", wantNil: true},
		{
			name:     "minio",
			settings: config.UploadSettings{Driver: DriverMinio, Endpoint: "localhost:9000", Bucket: "media"},
			wantType: "*uploader.Minio",
		},
		{
			name:     "s3 with custom endpoint",
			settings: config.UploadSettings{Driver: DriverS3, Endpoint: "http://localhost:4566", Region: "us-east-1", Bucket: "media", AccessKey: "a", SecretKey: "b"},
			wantType: "*uploader.S3",
		},
		{name: "unknown", settings: config.UploadSettings{Driver: "ftp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := New(ctx, tt.settings, logger)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if u != nil {
					t.Fatalf("expected nil uploader, got %T", u)
				}
				return
			}
			switch u.(type) {
			case *Minio:
				if tt.wantType != "*uploader.Minio" {
					t.Errorf("got %T, want %s", u, tt.wantType)
				}
			case *S3:
				if tt.wantType != "*uploader.S3" {
					t.Errorf("got %T, want %s", u, tt.wantType)
				}
			default:
				t.Errorf("unexpected type %T", u)
			}
		})
	}
}

func TestProgressReaderReportsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, make([]byte, 1000), 0o600); err != nil {
		t.Fatal(err)
	}

	var total int64
	r, size, err := openProgress(path, func(d int64) { total += d })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = r.Close() }()
	if size != 1000 {
		t.Fatalf("size = %d", size)
	}

	if _, err := io.CopyN(io.Discard, r, 400); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(int64(1000), total); diff != "" {
		t.Errorf("reported bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct{ prefix, key, want string }{
		{"", "1/a.mp4", "1/a.mp4"},
		{"bot/", "1/a.mp4", "bot/1/a.mp4"},
		{"bot", "1/a.mp4", "bot/1/a.mp4"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.key); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("x.unknownext"); got != "application/octet-stream" {
		t.Errorf("contentType = %q", got)
	}
}
