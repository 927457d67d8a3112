package filter

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"media_bot/internal/model"
)

func ptr(v int64) *int64 { return &v }

func videoMessage() model.Message {
	return model.Message{
		ChatID:  -100123,
		ID:      42,
		Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Caption: "weekly #release",
		Media: &model.Media{
			Kind:     model.MediaVideo,
			FileName: "test.mp4",
			FileSize: ptr(10 * 1024 * 1024),
			Width:    ptr(1920),
			Height:   ptr(1080),
			Duration: ptr(95),
		},
	}
}

func textMessage() model.Message {
	return model.Message{
		ChatID: -100123,
		ID:     43,
		Date:   time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		msg    model.Message
		want   bool
	}{
		{name: "size greater than", filter: "media_file_size > 1024", msg: videoMessage(), want: true},
		{name: "size equal", filter: "media_file_size == 1", msg: videoMessage(), want: false},
		{name: "size literal MB", filter: "media_file_size == 10MB", msg: videoMessage(), want: true},
		{name: "size literal fractional", filter: "file_size > 9.5 mb", msg: videoMessage(), want: true},
		{name: "file name literal", filter: "media_file_name == 'test.mp4'", msg: videoMessage(), want: true},
		{name: "file name regex full match", filter: "media_file_name == r'test.*mp4'", msg: videoMessage(), want: true},
		{name: "file name regex must match whole string", filter: "media_file_name == r'test'", msg: videoMessage(), want: false},
		{name: "file name regex not equal", filter: "media_file_name != r'test2.*mp4'", msg: videoMessage(), want: true},
		{name: "regex on the left", filter: "r'.*\\.mp4' == file_name", msg: videoMessage(), want: true},
		{name: "double quoted string", filter: `file_name == "test.mp4"`, msg: videoMessage(), want: true},
		{name: "caption regex", filter: "caption == r'.*#release.*'", msg: videoMessage(), want: true},
		{name: "alias id", filter: "id == 42 and message_id == id", msg: videoMessage(), want: true},
		{name: "word and symbolic and agree", filter: "media_width >= 1920 && media_height <= 1080", msg: videoMessage(), want: true},
		{name: "or", filter: "media_duration > 600 or media_width == 1920", msg: videoMessage(), want: true},
		{name: "symbolic or both false", filter: "media_duration > 600 || media_width == 1", msg: videoMessage(), want: false},
		{name: "timestamp after", filter: "message_date >= 2024-01-01 00:00:00", msg: videoMessage(), want: true},
		{name: "timestamp before", filter: "message_date < 2024-01-01 00:00:00", msg: videoMessage(), want: false},
		{name: "arithmetic precedence", filter: "1 + 2 * 3 == 7", msg: videoMessage(), want: true},
		{name: "grouping", filter: "(1 + 2) * 3 == 9", msg: videoMessage(), want: true},
		{name: "unary minus", filter: "-2 * -3 == 6", msg: videoMessage(), want: true},
		{name: "integer division", filter: "10 / 3 == 3", msg: videoMessage(), want: true},
		{name: "arithmetic on attributes", filter: "media_width * media_height > 2000000", msg: videoMessage(), want: true},
		{name: "string concatenation", filter: "'te' + 'st.mp4' == file_name", msg: videoMessage(), want: true},
		{name: "media type", filter: "media_type == 'video'", msg: videoMessage(), want: true},
		{name: "boolean literal", filter: "true", msg: videoMessage(), want: true},
		{name: "short circuit hides right side", filter: "true || file_name > 1", msg: videoMessage(), want: true},
		{name: "absent comparison passes", filter: "media_width > 100", msg: textMessage(), want: true},
		{name: "absent equality passes", filter: "media_duration == 5", msg: textMessage(), want: true},
		{name: "absent inequality passes", filter: "media_duration != 5", msg: textMessage(), want: true},
		{name: "absent arithmetic is zero", filter: "media_file_size + 10 == 10", msg: textMessage(), want: true},
		{name: "absent negation is zero", filter: "-media_width + 1 == 1", msg: textMessage(), want: true},
		{name: "absent file name defaults to empty", filter: "file_name == ''", msg: textMessage(), want: true},
		{name: "absent in logical operand", filter: "media_width and false", msg: textMessage(), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.filter)
			if err != nil {
				t.Fatalf("compile %q: %v", tt.filter, err)
			}
			got, err := e.Match(Bind(tt.msg))
			if err != nil {
				t.Fatalf("match %q: %v", tt.filter, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match(%q) mismatch (-want +got):\n%s", tt.filter, diff)
			}
		})
	}
}

func TestMatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		msg     model.Message
		wantErr error
	}{
		{name: "string against integer", filter: "media_file_name > 10", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "string equals integer", filter: "media_file_name == 10", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "regex against integer", filter: "media_file_size == r'1.*'", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "regex in relational", filter: "file_name > r'a'", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "timestamp against integer", filter: "message_date > 5", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "integer in logical", filter: "media_width and true", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "non boolean result", filter: "media_width + 1", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "negate string", filter: "-file_name == 1", msg: videoMessage(), wantErr: ErrTypeMismatch},
		{name: "undefined name", filter: "media_bitrate > 1", msg: videoMessage(), wantErr: ErrUndefinedName},
		{name: "division by zero", filter: "message_id / 0 > 1", msg: videoMessage(), wantErr: ErrDivisionByZero},
		{name: "absent divisor is zero", filter: "id / media_duration == 1", msg: textMessage(), wantErr: ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.filter)
			if err != nil {
				t.Fatalf("compile %q: %v", tt.filter, err)
			}
			_, err = e.Match(Bind(tt.msg))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Match(%q) error = %v, want %v", tt.filter, err, tt.wantErr)
			}
			var fe *Error
			if !errors.As(err, &fe) || fe.Msg == "" {
				t.Errorf("expected *Error with message, got %#v", err)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		filter string
	}{
		{name: "empty", filter: "   "},
		{name: "chained comparison", filter: "1 < 2 < 3"},
		{name: "unclosed paren", filter: "(id > 1"},
		{name: "dangling operator", filter: "id >"},
		{name: "fraction without unit", filter: "file_size > 1.5"},
		{name: "unterminated string", filter: "file_name == 'abc"},
		{name: "invalid regex", filter: "file_name == r'['"},
		{name: "single equals", filter: "id = 1"},
		{name: "trailing token", filter: "id > 1 2"},
		{name: "size overflows int64", filter: "file_size > 8388608TB"},
		{name: "size above int64", filter: "file_size > 9000000TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.filter)
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("Compile(%q) error = %v, want syntax error", tt.filter, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr error
	}{
		{name: "valid", filter: "media_file_size > 10MB and file_name != r'.*\\.part'"},
		{name: "valid timestamp", filter: "message_date > 2023-05-01 10:00:00"},
		{name: "type mismatch", filter: "media_file_name > 10", wantErr: ErrTypeMismatch},
		{name: "undefined name", filter: "foo > 1", wantErr: ErrUndefinedName},
		{name: "syntax", filter: "id >> 1", wantErr: ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.filter, time.UTC)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate(%q) error = %v, want %v", tt.filter, err, tt.wantErr)
			}
		})
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "bytes", src: "512B", want: "512"},
		{name: "kilobytes", src: "1.5KB", want: "1536"},
		{name: "megabytes with space", src: "10 MB", want: "10485760"},
		{name: "gigabytes lower case", src: "2gb", want: "2147483648"},
		{name: "timestamp", src: "2024-01-02 03:04:05", want: "2024-01-02 03:04:05"},
		{name: "escaped quote", src: `'it\'s'`, want: `"it's"`},
		{name: "regex keeps escapes", src: `r'a\.b'`, want: `r"a\\.b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.src)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			v, err := e.Eval(Record{})
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if diff := cmp.Diff(tt.want, v.String()); diff != "" {
				t.Errorf("literal mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTimestampLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	e, err := CompileIn("message_date == 2024-06-01 15:00:00", loc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := e.Match(Bind(videoMessage()))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !got {
		t.Error("expected 15:00 UTC+3 to equal 12:00 UTC")
	}
}

func TestEvalDeterministic(t *testing.T) {
	e, err := Compile("media_file_size > 1MB and caption == r'.*release.*'")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rec := Bind(videoMessage())
	first, err := e.Match(rec)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	for i := 0; i < 100; i++ {
		got, err := e.Match(rec)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		if got != first {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
	}
}

func TestConcurrentEval(t *testing.T) {
	if _, err := Compile("message_id % 2 == 0"); err == nil {
		t.Fatal("expected '%' to be rejected")
	}

	e, err := Compile("message_id / 2 * 2 == message_id")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := int64(0); i < 200; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			msg := textMessage()
			msg.ID = id
			got, err := e.Match(Bind(msg))
			if err != nil {
				errs <- err
				return
			}
			if want := id%2 == 0; got != want {
				errs <- fmt.Errorf("id %d: got %v, want %v", id, got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache(time.UTC)
	a, err := c.Compile("id > 1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := c.Compile("id > 1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if a != b {
		t.Error("expected cached expression to be reused")
	}
	if _, err := c.Compile("id >"); err == nil {
		t.Error("expected compile error")
	}
}

func TestNames(t *testing.T) {
	e, err := Compile("file_size > 1 and (caption == 'x' or file_size < 5)")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if diff := cmp.Diff([]string{"caption", "file_size"}, e.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestBind(t *testing.T) {
	rec := Bind(textMessage())
	for _, key := range []string{"media_file_size", "media_width", "media_height", "media_duration", "file_size"} {
		if !rec[key].IsAbsent() {
			t.Errorf("%s: expected absent, got %v", key, rec[key])
		}
	}
	if got := rec["media_file_name"]; got.Kind() != KindString || got.AsString() != "" {
		t.Errorf("media_file_name: got %v", got)
	}

	rec = Bind(videoMessage())
	if diff := cmp.Diff(int64(10*1024*1024), rec["file_size"].AsInt()); diff != "" {
		t.Errorf("file_size alias mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("test.mp4", rec["file_name"].AsString()); diff != "" {
		t.Errorf("file_name alias mismatch (-want +got):\n%s", diff)
	}
}
