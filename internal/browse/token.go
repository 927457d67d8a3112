package browse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTokenLen is the callback data limit of the Bot API.
const MaxTokenLen = 64

// Action is a browse callback action.
type Action string

// Browse actions.
const (
	ActionToggle Action = "toggle"
	ActionDone   Action = "done"
	ActionCancel Action = "cancel"
)

// ErrBadToken is returned for callback data that is not a browse token.
var ErrBadToken = errors.New("bad callback token")

// Token addresses a browse action: ns:session:item:action.
type Token struct {
	Namespace string
	SessionID string
	ItemID    int64
	Action    Action
}

// Encode renders the token as callback data.
func (t Token) Encode() (string, error) {
	if t.Namespace == "" || strings.Contains(t.Namespace, ":") || strings.Contains(t.SessionID, ":") {
		return "", fmt.Errorf("encode token: %w", ErrBadToken)
	}
	if !validAction(t.Action) {
		return "", fmt.Errorf("encode token: unknown action %q: %w", t.Action, ErrBadToken)
	}
	s := t.Namespace + ":" + t.SessionID + ":" + strconv.FormatInt(t.ItemID, 10) + ":" + string(t.Action)
	if len(s) > MaxTokenLen {
		return "", fmt.Errorf("encode token: %d bytes exceeds %d: %w", len(s), MaxTokenLen, ErrBadToken)
	}
	return s, nil
}

// ParseToken decodes callback data produced by Encode.
func ParseToken(data string) (Token, error) {
	if len(data) > MaxTokenLen {
		return Token{}, ErrBadToken
	}
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" {
		return Token{}, ErrBadToken
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id < 0 {
		return Token{}, ErrBadToken
	}
	act := Action(parts[3])
	if !validAction(act) {
		return Token{}, ErrBadToken
	}
	return Token{Namespace: parts[0], SessionID: parts[1], ItemID: id, Action: act}, nil
}

func validAction(a Action) bool {
	switch a {
	case ActionToggle, ActionDone, ActionCancel:
		return true
	}
	return false
}
