package filter

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLiteral
	tokIdent
	tokAnd
	tokOr
	tokEq
	tokNe
	tokGt
	tokLt
	tokGe
	tokLe
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

var tokenText = map[tokenKind]string{
	tokEOF: "end of input", tokAnd: "and", tokOr: "or",
	tokEq: "==", tokNe: "!=", tokGt: ">", tokLt: "<", tokGe: ">=", tokLe: "<=",
	tokPlus: "+", tokMinus: "-", tokStar: "*", tokSlash: "/",
	tokLParen: "(", tokRParen: ")",
}

type token struct {
	kind tokenKind
	text string
	pos  int
	val  Value
}

func (t token) String() string {
	switch t.kind {
	case tokLiteral, tokIdent:
		return t.text
	}
	return tokenText[t.kind]
}

var (
	timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)
	sizeRe      = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([KMGT]?B)\b`)
	intRe       = regexp.MustCompile(`^\d+`)
)

var sizeUnits = map[string]float64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

var twoCharOps = map[string]tokenKind{
	"==": tokEq, "!=": tokNe, ">=": tokGe, "<=": tokLe, "&&": tokAnd, "||": tokOr,
}

var oneCharOps = map[byte]tokenKind{
	'>': tokGt, '<': tokLt, '+': tokPlus, '-': tokMinus,
	'*': tokStar, '/': tokSlash, '(': tokLParen, ')': tokRParen,
}

func tokenize(src string, loc *time.Location) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			tok, n, err := lexNumber(src[i:], i, loc)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n
		case c == '\'' || c == '"':
			s, n, err := lexQuoted(src[i:], i, true)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokLiteral, text: src[i : i+n], pos: i, val: String(s)})
			i += n
		case (c == 'r' || c == 'R') && i+1 < len(src) && (src[i+1] == '\'' || src[i+1] == '"'):
			s, n, err := lexQuoted(src[i+1:], i+1, false)
			if err != nil {
				return nil, err
			}
			v, err := regexValue(s)
			if err != nil {
				return nil, syntaxErr(i, "invalid regex %q: %v", s, err)
			}
			toks = append(toks, token{kind: tokLiteral, text: src[i : i+1+n], pos: i, val: v})
			i += 1 + n
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, identToken(src[i:j], i))
			i = j
		default:
			if i+1 < len(src) {
				if k, ok := twoCharOps[src[i:i+2]]; ok {
					toks = append(toks, token{kind: k, text: src[i : i+2], pos: i})
					i += 2
					continue
				}
			}
			if k, ok := oneCharOps[c]; ok {
				toks = append(toks, token{kind: k, text: string(c), pos: i})
				i++
				continue
			}
			return nil, syntaxErr(i, "unexpected character %q", c)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func identToken(word string, pos int) token {
	switch word {
	case "and":
		return token{kind: tokAnd, text: word, pos: pos}
	case "or":
		return token{kind: tokOr, text: word, pos: pos}
	case "true":
		return token{kind: tokLiteral, text: word, pos: pos, val: Bool(true)}
	case "false":
		return token{kind: tokLiteral, text: word, pos: pos, val: Bool(false)}
	}
	return token{kind: tokIdent, text: word, pos: pos}
}

func lexNumber(s string, pos int, loc *time.Location) (token, int, error) {
	if m := timestampRe.FindString(s); m != "" {
		t, err := time.ParseInLocation(timestampLayout, m, loc)
		if err != nil {
			return token{}, 0, syntaxErr(pos, "invalid timestamp %q", m)
		}
		return token{kind: tokLiteral, text: m, pos: pos, val: Time(t)}, len(m), nil
	}
	if m := sizeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return token{}, 0, syntaxErr(pos, "invalid size %q", m[0])
		}
		bytes := n * sizeUnits[strings.ToUpper(m[2])]
		if bytes >= math.MaxInt64 {
			return token{}, 0, syntaxErr(pos, "size %q out of range", m[0])
		}
		return token{kind: tokLiteral, text: m[0], pos: pos, val: Int(int64(bytes))}, len(m[0]), nil
	}
	m := intRe.FindString(s)
	if len(m) < len(s) && s[len(m)] == '.' {
		return token{}, 0, syntaxErr(pos+len(m), "fractional numbers need a size unit")
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return token{}, 0, syntaxErr(pos, "integer %q out of range", m)
	}
	return token{kind: tokLiteral, text: m, pos: pos, val: Int(n)}, len(m), nil
}

// lexQuoted reads a quoted literal starting at s[0]. With unescape set the
// usual backslash escapes are decoded; otherwise only an escaped quote is
// collapsed so regex escapes survive untouched.
func lexQuoted(s string, pos int, unescape bool) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch {
		case next == quote:
			b.WriteByte(quote)
		case !unescape:
			b.WriteByte('\\')
			b.WriteByte(next)
		case next == 'n':
			b.WriteByte('\n')
		case next == 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(next)
		}
		i++
	}
	return "", 0, syntaxErr(pos, "unterminated string")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
