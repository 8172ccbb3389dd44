package document

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// partialParser walks possibly-truncated JSON text and returns the value it
// describes so far. Values are built from the same Go types encoding/json
// produces for an `any` target, so a complete document yields the same value
// whether it came through json.Unmarshal or through this parser.
type partialParser struct {
	src    string
	pos    int
	halted bool // set on a structural error; every level stops consuming
}

// parsePartial recovers the first top-level object in text. Text before the
// opening brace and after the matching closing brace is ignored.
func parsePartial(text string) (any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	p := &partialParser{src: text, pos: start}
	return p.value()
}

func (p *partialParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *partialParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// value returns false when no value has started or the value is unusable.
func (p *partialParser) value() (any, bool) {
	p.skipSpace()
	if p.eof() || p.halted {
		return nil, false
	}
	switch p.src[p.pos] {
	case '{':
		return p.object(), true
	case '[':
		return p.array(), true
	case '"':
		s, _ := p.str()
		return s, true
	default:
		return p.literal()
	}
}

func (p *partialParser) object() map[string]any {
	obj := map[string]any{}
	p.pos++
	for {
		p.skipSpace()
		if p.eof() || p.halted {
			return obj
		}
		switch p.src[p.pos] {
		case '}':
			p.pos++
			return obj
		case ',':
			p.pos++
			continue
		case '"':
		default:
			p.halted = true
			return obj
		}

		key, closed := p.str()
		if !closed {
			return obj
		}
		p.skipSpace()
		if p.eof() {
			return obj
		}
		if p.src[p.pos] != ':' {
			p.halted = true
			return obj
		}
		p.pos++

		// A key whose value has not started yet is left out.
		v, ok := p.value()
		if !ok {
			return obj
		}
		obj[key] = v
	}
}

func (p *partialParser) array() []any {
	arr := []any{}
	p.pos++
	for {
		p.skipSpace()
		if p.eof() || p.halted {
			return arr
		}
		switch p.src[p.pos] {
		case ']':
			p.pos++
			return arr
		case ',':
			p.pos++
			continue
		case '}':
			p.halted = true
			return arr
		}

		v, ok := p.value()
		if !ok {
			return arr
		}
		arr = append(arr, v)
	}
}

// str reads a string starting at the opening quote. closed is false when
// the input ended first; the text seen so far is returned, minus any escape
// sequence or UTF-8 sequence that was cut off.
func (p *partialParser) str() (s string, closed bool) {
	var b strings.Builder
	p.pos++
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return b.String(), true
		case c == '\\':
			if !p.escape(&b) {
				p.pos = len(p.src)
				return b.String(), false
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return trimPartialRune(b.String()), false
}

// escape decodes the escape sequence at p.pos. It returns false when the
// sequence is truncated by the end of input.
func (p *partialParser) escape(b *strings.Builder) bool {
	if p.pos+1 >= len(p.src) {
		return false
	}
	switch esc := p.src[p.pos+1]; esc {
	case '"', '\\', '/':
		b.WriteByte(esc)
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'u':
		r, n, ok := p.unicodeEscape(p.pos)
		if !ok {
			return false
		}
		b.WriteRune(r)
		p.pos += n
		return true
	default:
		b.WriteByte(esc)
	}
	p.pos += 2
	return true
}

// unicodeEscape decodes \uXXXX at i, combining surrogate pairs. It returns
// the rune, the number of bytes consumed and false if the input is cut short.
func (p *partialParser) unicodeEscape(i int) (rune, int, bool) {
	r, ok := p.hex4(i)
	if !ok {
		return 0, 0, false
	}
	if !utf16.IsSurrogate(r) {
		return r, 6, true
	}
	rest := p.src[i+6:]
	if len(rest) < 6 && strings.HasPrefix(`\u`, rest[:min(len(rest), 2)]) {
		// The low half may still be on its way.
		return 0, 0, false
	}
	if strings.HasPrefix(rest, `\u`) {
		if lo, ok := p.hex4(i + 6); ok {
			if pair := utf16.DecodeRune(r, lo); pair != utf8.RuneError {
				return pair, 12, true
			}
		}
	}
	return utf8.RuneError, 6, true
}

func (p *partialParser) hex4(i int) (rune, bool) {
	if i+6 > len(p.src) {
		return 0, false
	}
	n, err := strconv.ParseUint(p.src[i+2:i+6], 16, 32)
	if err != nil {
		return utf8.RuneError, true
	}
	return rune(n), true
}

// literal reads a number, true, false or null. A token running into the end
// of input may still grow, so it counts as not started.
func (p *partialParser) literal() (any, bool) {
	start := p.pos
	for p.pos < len(p.src) && isLiteralByte(p.src[p.pos]) {
		p.pos++
	}
	if p.eof() {
		return nil, false
	}
	tok := p.src[start:p.pos]
	switch tok {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, true
	}
	p.halted = true
	return nil, false
}

func isLiteralByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '+', c == '.':
		return true
	}
	return false
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of s.
func trimPartialRune(s string) string {
	for i := 1; i < utf8.UTFMax && i <= len(s); i++ {
		if !utf8.RuneStart(s[len(s)-i]) {
			continue
		}
		if !utf8.FullRuneInString(s[len(s)-i:]) {
			return s[:len(s)-i]
		}
		return s
	}
	return s
}
