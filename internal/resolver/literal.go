package resolver

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// parseList parses a flat list literal of strings or numbers, in either JSON
// or Python syntax: ["a", 'b', 3,]. Numbers are kept in their source spelling.
func parseList(s string) ([]string, error) {
	p := &listParser{src: strings.TrimSpace(s)}
	return p.parse()
}

type listParser struct {
	src string
	pos int
}

func (p *listParser) parse() ([]string, error) {
	if !p.consume('[') {
		return nil, eris.New("reply is not a list")
	}
	var out []string
	for {
		p.skipSpace()
		if p.consume(']') {
			break
		}
		v, err := p.element()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			break
		}
		return nil, eris.Errorf("expected ',' or ']' at offset %d", p.pos)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, eris.Errorf("trailing content at offset %d", p.pos)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (p *listParser) element() (string, error) {
	if p.pos >= len(p.src) {
		return "", eris.New("unterminated list")
	}
	switch c := p.src[p.pos]; {
	case c == '\'' || c == '"':
		return p.quoted(c)
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return "", eris.Errorf("unsupported element at offset %d", p.pos)
	}
}

func (p *listParser) quoted(q byte) (string, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == q:
			p.pos++
			return sb.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", eris.New("dangling escape")
			}
			if err := p.escape(&sb); err != nil {
				return "", err
			}
		case c == '\n':
			return "", eris.New("newline in string literal")
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteRune(r)
			p.pos += size
		}
	}
	return "", eris.New("unterminated string literal")
}

func (p *listParser) escape(sb *strings.Builder) error {
	e := p.src[p.pos+1]
	p.pos += 2
	switch e {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '\\', '\'', '"', '/':
		sb.WriteByte(e)
	case 'u':
		if p.pos+4 > len(p.src) {
			return eris.New("short unicode escape")
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
		if err != nil {
			return eris.Wrap(err, "bad unicode escape")
		}
		sb.WriteRune(rune(n))
		p.pos += 4
	default:
		sb.WriteByte('\\')
		sb.WriteByte(e)
	}
	return nil
}

func (p *listParser) number() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	lit := p.src[start:p.pos]
	if _, err := strconv.ParseFloat(strings.ReplaceAll(lit, "_", ""), 64); err != nil {
		return "", eris.Errorf("bad number %q", lit)
	}
	return lit, nil
}

func (p *listParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *listParser) consume(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}
