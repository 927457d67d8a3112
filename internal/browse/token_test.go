package browse

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenRoundTrip(t *testing.T) {
	tok := Token{Namespace: "br", SessionID: newSessionID(), ItemID: 9223372036854775807, Action: ActionToggle}
	data, err := tok.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) > MaxTokenLen {
		t.Errorf("token is %d bytes", len(data))
	}
	got, err := ParseToken(data)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if diff := cmp.Diff(tok, got); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTokenErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "too few fields", data: "br:abc:1"},
		{name: "too many fields", data: "br:abc:1:done:x"},
		{name: "bad id", data: "br:abc:x:done"},
		{name: "negative id", data: "br:abc:-1:done"},
		{name: "unknown action", data: "br:abc:1:explode"},
		{name: "empty session", data: "br::1:done"},
		{name: "too long", data: "br:" + strings.Repeat("a", 64) + ":1:done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.data); !errors.Is(err, ErrBadToken) {
				t.Errorf("ParseToken(%q) err = %v, want ErrBadToken", tt.data, err)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		tok  Token
	}{
		{name: "no namespace", tok: Token{SessionID: "a", Action: ActionDone}},
		{name: "colon in session", tok: Token{Namespace: "br", SessionID: "a:b", Action: ActionDone}},
		{name: "bad action", tok: Token{Namespace: "br", SessionID: "a", Action: "x"}},
		{name: "too long", tok: Token{Namespace: "br", SessionID: strings.Repeat("a", 60), Action: ActionCancel}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.tok.Encode(); !errors.Is(err, ErrBadToken) {
				t.Errorf("Encode err = %v, want ErrBadToken", err)
			}
		})
	}
}
