package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	defaultBrowseMinutes = 60
	maxBrowseMinutes     = 7 * 24 * 60
)

// RangeArgs holds the parsed arguments of /download and /forward.
type RangeArgs struct {
	ChatID   int64
	TargetID int64
	OffsetID int64
	Limit    int
	Filter   string
}

// ParseDownloadArgs parses arguments for /download.
// Format: <chat_id> [offset_id] [limit] [filter...]
func ParseDownloadArgs(args string) (RangeArgs, error) {
	head, rest := nextField(args)
	if head == "" {
		return RangeArgs{}, fmt.Errorf("usage: /download <chat_id> [offset_id] [limit] [filter]")
	}
	id, err := parseChatID(head)
	if err != nil {
		return RangeArgs{}, err
	}
	r := RangeArgs{ChatID: id}
	if err := parseRangeTail(&r, rest); err != nil {
		return RangeArgs{}, err
	}
	return r, nil
}

// ParseForwardArgs parses arguments for /forward.
// Format: <from_chat_id> <to_chat_id> [offset_id] [limit] [filter...]
func ParseForwardArgs(args string) (RangeArgs, error) {
	from, rest := nextField(args)
	to, rest := nextField(rest)
	if from == "" || to == "" {
		return RangeArgs{}, fmt.Errorf("usage: /forward <from_chat_id> <to_chat_id> [offset_id] [limit] [filter]")
	}
	fromID, err := parseChatID(from)
	if err != nil {
		return RangeArgs{}, err
	}
	toID, err := parseChatID(to)
	if err != nil {
		return RangeArgs{}, err
	}
	if fromID == toID {
		return RangeArgs{}, fmt.Errorf("source and destination must differ")
	}
	r := RangeArgs{ChatID: fromID, TargetID: toID}
	if err := parseRangeTail(&r, rest); err != nil {
		return RangeArgs{}, err
	}
	return r, nil
}

// parseRangeTail reads the optional offset and limit and keeps the rest,
// spacing intact, as the filter.
func parseRangeTail(r *RangeArgs, rest string) error {
	if f, tail := nextField(rest); isUint(f) {
		off, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid offset %q", f)
		}
		r.OffsetID, rest = off, tail
		if f, tail := nextField(rest); isUint(f) {
			limit, err := strconv.Atoi(f)
			if err != nil {
				return fmt.Errorf("invalid limit %q", f)
			}
			r.Limit, rest = limit, tail
		}
	}
	r.Filter = strings.TrimSpace(rest)
	return nil
}

// BrowseArgs holds the parsed arguments of /browse.
type BrowseArgs struct {
	ChatID  int64
	Minutes int
}

// ParseBrowseArgs parses arguments for /browse.
// Format: <chat_id> [minutes]
func ParseBrowseArgs(args string) (BrowseArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return BrowseArgs{}, fmt.Errorf("usage: /browse <chat_id> [minutes]")
	}
	id, err := parseChatID(parts[0])
	if err != nil {
		return BrowseArgs{}, err
	}
	a := BrowseArgs{ChatID: id, Minutes: defaultBrowseMinutes}
	if len(parts) == 2 {
		mins, err := strconv.Atoi(parts[1])
		if err != nil || mins < 1 || mins > maxBrowseMinutes {
			return BrowseArgs{}, fmt.Errorf("minutes must be between 1 and %d", maxBrowseMinutes)
		}
		a.Minutes = mins
	}
	return a, nil
}

// ParseChatFilterArgs extracts a chat ID and filter text.
// Format: <chat_id> <filter...>
func ParseChatFilterArgs(args string) (int64, string, error) {
	head, rest := nextField(args)
	rest = strings.TrimSpace(rest)
	if head == "" || rest == "" {
		return 0, "", fmt.Errorf("usage: /set_filter <chat_id> <filter>")
	}
	id, err := parseChatID(head)
	if err != nil {
		return 0, "", err
	}
	return id, rest, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat ID %q", s)
	}
	return id, nil
}

// nextField splits off the first whitespace-separated field.
func nextField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func isUint(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
