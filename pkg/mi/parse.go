package mi

import (
	"errors"
	"strings"
)

// Prompt is the ready marker gdb prints after every batch of output.
const Prompt = "(gdb)"

var errBadSyntax = errors.New("malformed MI syntax")

// ParseLine parses one MI output line. It never fails: lines that do
// not follow the grammar come back as RecordOther with the raw text
// preserved, because real debuggers emit diagnostic chatter that must
// not desynchronize the session.
func ParseLine(line string) Record {
	raw := line
	line = strings.TrimRight(line, "\r")

	if strings.TrimSpace(line) == Prompt {
		return Record{Kind: RecordPrompt, Token: NoToken, Raw: raw}
	}

	p := &parser{s: line}
	token := p.parseToken()

	rec := Record{Kind: RecordOther, Token: token, Raw: raw, Text: line}
	if p.eof() {
		rec.Token = NoToken
		return rec
	}

	var kind RecordKind
	switch p.peek() {
	case '^':
		kind = RecordResult
	case '*':
		kind = RecordAsyncExec
	case '+':
		kind = RecordAsyncStatus
	case '=':
		kind = RecordAsyncNotify
	case '~', '@', '&':
		return p.parseStream(rec)
	default:
		rec.Token = NoToken
		return rec
	}
	p.next()

	class, err := p.parseClass()
	if err != nil {
		return rec
	}
	fields, err := p.parseFieldList()
	if err != nil {
		// Recognized prefix with malformed trailing content: downgrade
		// instead of failing, keeping whatever was recognizable.
		return rec
	}
	rec.Kind = kind
	rec.Class = class
	rec.Fields = fields
	rec.Text = ""
	return rec
}

// parseStream consumes a '~', '@' or '&' stream line. The payload is a
// C string; if the quotes are missing the rest of the line is taken
// verbatim.
func (p *parser) parseStream(rec Record) Record {
	switch p.next() {
	case '~':
		rec.Kind = RecordConsoleStream
	case '@':
		rec.Kind = RecordTargetStream
	case '&':
		rec.Kind = RecordLogStream
	}
	if p.eof() || p.peek() != '"' {
		rec.Text = p.rest()
		return rec
	}
	text, err := p.parseCString()
	if err != nil {
		rec.Text = p.rest()
		return rec
	}
	rec.Text = text
	return rec
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool  { return p.pos >= len(p.s) }
func (p *parser) peek() byte { return p.s[p.pos] }
func (p *parser) next() byte {
	c := p.s[p.pos]
	p.pos++
	return c
}
func (p *parser) rest() string { return p.s[p.pos:] }

// parseToken consumes an optional leading integer token.
func (p *parser) parseToken() int {
	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if p.pos == start {
		return NoToken
	}
	token := 0
	for _, c := range p.s[start:p.pos] {
		token = token*10 + int(c-'0')
	}
	return token
}

// parseClass consumes the class keyword of a result or async record.
func (p *parser) parseClass() (string, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", errBadSyntax
	}
	return p.s[start:p.pos], nil
}

// parseFieldList consumes the ,key=value sequence following a class
// keyword, up to the end of the line.
func (p *parser) parseFieldList() (Tuple, error) {
	var fields Tuple
	for !p.eof() {
		if p.next() != ',' {
			return nil, errBadSyntax
		}
		if p.eof() {
			return nil, errBadSyntax
		}
		// Status records ('+download,{...}') carry bare unnamed values.
		if c := p.peek(); c == '"' || c == '{' || c == '[' {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Value: v})
			continue
		}
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (p *parser) parseField() (Field, error) {
	name, err := p.parseClass()
	if err != nil {
		return Field{}, err
	}
	if p.eof() || p.next() != '=' {
		return Field{}, errBadSyntax
	}
	v, err := p.parseValue()
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Value: v}, nil
}

func (p *parser) parseValue() (Value, error) {
	if p.eof() {
		return nil, errBadSyntax
	}
	switch p.peek() {
	case '"':
		s, err := p.parseCString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case '{':
		return p.parseTuple()
	case '[':
		return p.parseList()
	default:
		// Bare values are not in the published grammar but appear in
		// the wild (e.g. register numbers); take the run up to the next
		// delimiter.
		return p.parseBare()
	}
}

func (p *parser) parseTuple() (Value, error) {
	p.next() // '{'
	var t Tuple
	if !p.eof() && p.peek() == '}' {
		p.next()
		return t, nil
	}
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		t = append(t, f)
		if p.eof() {
			return nil, errBadSyntax
		}
		switch p.next() {
		case ',':
		case '}':
			return t, nil
		default:
			return nil, errBadSyntax
		}
	}
}

func (p *parser) parseList() (Value, error) {
	p.next() // '['
	var l List
	if !p.eof() && p.peek() == ']' {
		p.next()
		return l, nil
	}
	for {
		v, err := p.parseListItem()
		if err != nil {
			return nil, err
		}
		l = append(l, v)
		if p.eof() {
			return nil, errBadSyntax
		}
		switch p.next() {
		case ',':
		case ']':
			return l, nil
		default:
			return nil, errBadSyntax
		}
	}
}

// parseListItem accepts either a plain value or a bare key=value result.
func (p *parser) parseListItem() (Value, error) {
	if p.eof() {
		return nil, errBadSyntax
	}
	c := p.peek()
	if c == '"' || c == '{' || c == '[' {
		return p.parseValue()
	}
	save := p.pos
	name, err := p.parseClass()
	if err == nil && !p.eof() && p.peek() == '=' {
		p.next()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Named{Name: name, Value: v}, nil
	}
	p.pos = save
	return p.parseBare()
}

func (p *parser) parseBare() (Value, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ',' || c == '}' || c == ']' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return nil, errBadSyntax
	}
	return String(p.s[start:p.pos]), nil
}

// parseCString consumes a quoted C string including the quotes.
func (p *parser) parseCString() (string, error) {
	if p.next() != '"' {
		return "", errBadSyntax
	}
	start := p.pos
	for !p.eof() {
		switch p.peek() {
		case '\\':
			p.pos += 2
		case '"':
			s := p.s[start:p.pos]
			p.next()
			return Unescape(s), nil
		default:
			p.pos++
		}
	}
	return "", errBadSyntax
}
