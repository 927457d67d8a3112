package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media_bot/internal/model"
	"media_bot/internal/throughput"
)

var kindExt = map[model.MediaKind]string{
	model.MediaPhoto:     ".jpg",
	model.MediaVideo:     ".mp4",
	model.MediaAudio:     ".mp3",
	model.MediaVoice:     ".ogg",
	model.MediaAnimation: ".mp4",
	model.MediaVideoNote: ".mp4",
}

// transfer performs one attempt of the node's action for msg.
func (o *Orchestrator) transfer(ctx context.Context, node *model.TaskNode, msg model.Message, b Bounds) (model.DownloadStatus, error) {
	if node.Kind == model.TaskForward {
		return o.forward(ctx, node, msg, b)
	}
	return o.download(ctx, node, msg)
}

func (o *Orchestrator) download(ctx context.Context, node *model.TaskNode, msg model.Message) (model.DownloadStatus, error) {
	dest := o.destPath(msg)
	if existing(dest, msg.Media.FileSize) {
		return model.StatusSkipped, nil
	}
	if err := o.fetch(ctx, node, msg, dest); err != nil {
		return model.StatusFailed, err
	}
	if o.opts.Uploader != nil {
		if err := o.upload(ctx, msg, dest); err != nil {
			return model.StatusFailed, err
		}
	}
	return model.StatusSuccess, nil
}

func (o *Orchestrator) forward(ctx context.Context, node *model.TaskNode, msg model.Message, b Bounds) (model.DownloadStatus, error) {
	if !b.RestrictForward {
		err := o.opts.Forwarder.Forward(ctx, msg.ChatID, node.DestinationID, msg.ID)
		if err == nil {
			return model.StatusSuccess, nil
		}
		if !errors.Is(err, ErrForwardRestricted) {
			return model.StatusFailed, fmt.Errorf("forward message: %w", err)
		}
	}

	dest := o.destPath(msg)
	if !existing(dest, msg.Media.FileSize) {
		if err := o.fetch(ctx, node, msg, dest); err != nil {
			return model.StatusFailed, err
		}
	}
	defer func() { _ = os.Remove(dest) }()
	if err := o.opts.Forwarder.SendFile(ctx, node.DestinationID, dest, msg.Caption); err != nil {
		return model.StatusFailed, fmt.Errorf("send file: %w", err)
	}
	return model.StatusSuccess, nil
}

// fetch downloads msg to dest and verifies the advertised size.
func (o *Orchestrator) fetch(ctx context.Context, node *model.TaskNode, msg model.Message, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	var total int64
	if msg.Media.FileSize != nil {
		total = *msg.Media.FileSize
	}
	start := time.Now()
	progress := func(written int64) {
		o.opts.Tracker.Observe(throughput.Progress{
			TaskID:    node.ID,
			ChatID:    msg.ChatID,
			MessageID: msg.ID,
			FileName:  filepath.Base(dest),
			SavePath:  dest,
			Bytes:     written,
			Total:     total,
			Start:     start,
		})
	}
	defer o.opts.Tracker.Finish(msg.ChatID, msg.ID)

	n, err := o.opts.Downloader.Download(ctx, msg, dest, progress)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if total > 0 && n != total {
		_ = os.Remove(dest)
		return &SizeMismatchError{Got: n, Want: total}
	}
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, msg model.Message, local string) error {
	key := path.Join(strconv.FormatInt(msg.ChatID, 10), filepath.Base(local))
	if err := o.opts.Uploader.Upload(ctx, local, key, o.opts.Tracker.ObserveUpload); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if o.opts.DeleteLocal {
		if err := os.Remove(local); err != nil {
			o.opts.Logger.Warn("remove uploaded file", "path", local, "error", err)
		}
	}
	return nil
}

// destPath is <save_path>/<chat_id>/<message_id>_<file name>.
func (o *Orchestrator) destPath(msg model.Message) string {
	return filepath.Join(o.opts.SavePath, strconv.FormatInt(msg.ChatID, 10), FileName(msg))
}

// FileName is the local file name of a message's media.
func FileName(msg model.Message) string {
	id := strconv.FormatInt(msg.ID, 10)
	if msg.Media == nil {
		return id
	}
	name := sanitize(msg.Media.FileName)
	if name == "" {
		return id + kindExt[msg.Media.Kind]
	}
	return id + "_" + name
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
	return strings.Trim(name, ". _")
}

// existing reports whether dest already holds a complete copy.
func existing(dest string, size *int64) bool {
	info, err := os.Stat(dest)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	return size == nil || info.Size() == *size
}
