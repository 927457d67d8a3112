package task

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"media_bot/internal/model"
)

func progressStatus(node *model.TaskNode, dispatched int, speed float64) string {
	return fmt.Sprintf("%d/%d/%d of %d · %s/s",
		node.Count(model.StatusSuccess),
		node.Count(model.StatusFailed),
		node.Count(model.StatusSkipped),
		dispatched,
		humanize.IBytes(uint64(max(speed, 0))),
	)
}

func retryStatus(id int64, attempt int) string {
	return fmt.Sprintf("retrying %d (attempt %d/%d)", id, attempt, MaxAttempts)
}

func finalStatus(node *model.TaskNode, dispatched int, cancelled bool) string {
	state := "done"
	if cancelled {
		state = "cancelled"
	}
	return fmt.Sprintf("%s: %d/%d/%d of %d",
		state,
		node.Count(model.StatusSuccess),
		node.Count(model.StatusFailed),
		node.Count(model.StatusSkipped),
		dispatched,
	)
}

func failedStatus(id int64, reason string) string {
	return fmt.Sprintf("message %d failed: %s", id, reason)
}

// failureReason turns a terminal transfer error into the text shown to the user.
func failureReason(err error) string {
	var sizeErr *SizeMismatchError
	switch {
	case errors.Is(err, ErrReferenceExpired), errors.Is(err, ErrTimeout):
		return fmt.Sprintf("timed out after %d retries", MaxAttempts)
	case errors.As(err, &sizeErr):
		return fmt.Sprintf("size mismatch: got %s, want %s",
			humanize.IBytes(uint64(max(sizeErr.Got, 0))), humanize.IBytes(uint64(max(sizeErr.Want, 0))))
	default:
		return err.Error()
	}
}
