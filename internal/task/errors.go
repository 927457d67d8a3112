package task

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Transfer failures the orchestrator classifies. Transport adapters wrap
// their errors with these so errors.Is can tell them apart.
var (
	// ErrReferenceExpired means the media reference went stale; the message
	// is fetched again before the next attempt.
	ErrReferenceExpired = errors.New("file reference expired")
	// ErrTimeout means the transfer did not complete in time.
	ErrTimeout = errors.New("transfer timed out")
	// ErrForwardRestricted means the source chat does not allow relaying.
	ErrForwardRestricted = errors.New("forwarding restricted")
)

// SizeMismatchError reports a completed download whose size differs from
// the advertised one.
type SizeMismatchError struct {
	Got  int64
	Want int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: got %s, want %s (%d != %d bytes)",
		humanize.IBytes(uint64(max(e.Got, 0))), humanize.IBytes(uint64(max(e.Want, 0))), e.Got, e.Want)
}

// retryable reports whether err warrants another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrReferenceExpired) || errors.Is(err, ErrTimeout)
}
