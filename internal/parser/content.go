package parser

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// kerningSpace is the TJ adjustment, in thousandths of an em, past which a
// gap is read as a word space
const kerningSpace = -250

// ContentLines recovers lines of text from a PDF page content stream. Text
// positioning operators that move to a new baseline start a new line.
func ContentLines(stream string) []string {
	var (
		lines    []string
		cur      strings.Builder
		operands []token
		lastY    float64
		haveY    bool
	)
	newline := func() {
		lines = append(lines, strings.TrimRight(cur.String(), " "))
		cur.Reset()
	}
	moveTo := func(y float64) {
		if cur.Len() > 0 && (!haveY || y != lastY) {
			newline()
		}
		lastY, haveY = y, true
	}

	lx := lexer{src: stream}
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}

		switch tok.text {
		case "Td", "TD":
			if n := len(operands); n >= 2 {
				if ty := operands[n-1].number(); ty != 0 && cur.Len() > 0 {
					newline()
				}
			}
		case "Tm":
			if n := len(operands); n >= 6 {
				moveTo(operands[n-1].number())
			}
		case "T*":
			if cur.Len() > 0 {
				newline()
			}
		case "Tj":
			if n := len(operands); n >= 1 {
				cur.WriteString(operands[n-1].text)
			}
		case "'":
			newline()
			if n := len(operands); n >= 1 {
				cur.WriteString(operands[n-1].text)
			}
		case "\"":
			newline()
			if n := len(operands); n >= 3 {
				cur.WriteString(operands[n-1].text)
			}
		case "TJ":
			for _, el := range arrayElements(operands) {
				switch el.kind {
				case tokString:
					cur.WriteString(el.text)
				case tokNumber:
					if el.number() < kerningSpace && cur.Len() > 0 {
						cur.WriteByte(' ')
					}
				}
			}
		}
		operands = operands[:0]
	}
	if cur.Len() > 0 {
		newline()
	}
	return lines
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokArrayStart
	tokArrayEnd
	tokOperator
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

func (t token) number() float64 {
	v, _ := strconv.ParseFloat(t.text, 64)
	return v
}

// arrayElements returns the elements of the last array operand
func arrayElements(operands []token) []token {
	end := -1
	for i := len(operands) - 1; i >= 0; i-- {
		if operands[i].kind == tokArrayEnd {
			end = i
			break
		}
	}
	if end < 0 {
		return nil
	}
	for i := end - 1; i >= 0; i-- {
		if operands[i].kind == tokArrayStart {
			return operands[i+1 : end]
		}
	}
	return nil
}

type lexer struct {
	src string
	pos int
}

func isDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			return token{kind: tokString, text: decodeText(l.literal())}, true
		case c == '<' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '<':
			l.pos += 2
			return token{kind: tokOther, text: "<<"}, true
		case c == '>' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '>':
			l.pos += 2
			return token{kind: tokOther, text: ">>"}, true
		case c == '<':
			return token{kind: tokString, text: decodeText(l.hex())}, true
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart, text: "["}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd, text: "]"}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, text: l.regular()}, true
		case c == '\'' || c == '"':
			l.pos++
			return token{kind: tokOperator, text: string(c)}, true
		case c == '{' || c == '}' || c == ')' || c == '>':
			l.pos++
		default:
			word := l.regular()
			if word == "" {
				l.pos++
				continue
			}
			if _, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, text: word}, true
			}
			if word == "BI" {
				l.skipInlineImage()
				continue
			}
			return token{kind: tokOperator, text: word}, true
		}
	}
	return token{}, false
}

func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.src) && !isSpace(l.src[l.pos]) && !isDelimiter(l.src[l.pos]) {
		l.pos++
	}
	return l.src[start:l.pos]
}

func (l *lexer) literal() []byte {
	l.pos++ // (
	var out []byte
	depth := 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.src) {
				return out
			}
			e := l.src[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7'; i++ {
						v = v*8 + int(l.src[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func (l *lexer) hex() []byte {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.src) && l.src[l.pos] != '>' {
		c := l.src[l.pos]
		if !isSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage jumps past binary inline image data up to EI
func (l *lexer) skipInlineImage() {
	idx := strings.Index(l.src[l.pos:], "EI")
	if idx < 0 {
		l.pos = len(l.src)
		return
	}
	l.pos += idx + 2
}

// decodeText maps string operand bytes to text. UTF-16BE with a byte order
// mark and two-byte codes with a zero high byte are recognised; everything
// else is read as Latin-1.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if len(b) >= 2 && len(b)%2 == 0 {
		wide := true
		for i := 0; i < len(b); i += 2 {
			if b[i] != 0 {
				wide = false
				break
			}
		}
		if wide {
			narrow := make([]byte, 0, len(b)/2)
			for i := 1; i < len(b); i += 2 {
				narrow = append(narrow, b[i])
			}
			b = narrow
		}
	}
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		runes = append(runes, rune(c))
	}
	return string(runes)
}
