// Package headerparse implements lenient parsers for the Content-Type and
// Content-Disposition response header fields, including RFC 5987/8187
// extended-value parameters. Malformed input never produces a hard error;
// parsing degrades to partial or empty results the same way browsers do.
package headerparse

import "strings"

// Param is a single media type parameter. Names are lowercased.
type Param struct {
	Name  string
	Value string
}

// MediaType is a parsed Content-Type value (RFC 7231 media-type).
type MediaType struct {
	Type    string
	Subtype string
	Params  []Param
}

// Param returns the value of the named parameter, if present.
func (m *MediaType) Param(name string) (string, bool) {
	for _, p := range m.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// DispositionValue is a Content-Disposition parameter value. Extended
// values come from RFC 5987 ext-value parameters (name suffixed with "*")
// and carry a charset and optional language tag; Value is already
// percent-decoded in that case.
type DispositionValue struct {
	Extended bool
	Charset  string
	Language string
	Value    string
}

// DispositionParam is a single Content-Disposition parameter. Names are
// lowercased and stored without the "*" ext-value suffix.
type DispositionParam struct {
	Name  string
	Value DispositionValue
}

// Disposition is a parsed Content-Disposition value (RFC 6266).
type Disposition struct {
	Type   string
	Params []DispositionParam
}

// Param returns the value of the named parameter, if present. A plain and
// an extended parameter share the same name; the last one parsed wins.
func (d *Disposition) Param(name string) (DispositionValue, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return DispositionValue{}, false
}

// parser is a cursor over a header field value. The zero byte is returned
// past the end of input, which terminates every sub-parse.
type parser struct {
	s   string
	pos int
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) next() {
	if p.pos < len(p.s) {
		p.pos++
	}
}

// isCTL reports whether c is an RFC 2616 control character.
func isCTL(c byte) bool {
	return c <= 31 || c == 127
}

// isSeparator reports whether c is an RFC 2616 separator.
func isSeparator(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '@',
		',', ';', ':', '\\', '"',
		'/', '[', ']', '?', '=',
		'{', '}', ' ', '\t':
		return true
	}
	return false
}

// skipLWSP advances over linear whitespace.
func (p *parser) skipLWSP() {
	for {
		c := p.peek()
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return
		}
		p.next()
	}
}

// token consumes the maximal run of token characters (RFC 2616: any CHAR
// except CTLs and separators). The result may be empty; callers that need
// a non-empty token check the length.
func (p *parser) token() string {
	start := p.pos
	for {
		c := p.peek()
		if c == 0 || isCTL(c) || isSeparator(c) {
			break
		}
		p.next()
	}
	return p.s[start:p.pos]
}

// quotedString consumes a quoted-string starting at a DQUOTE. Backslash
// escapes emit the following character literally. A control character
// other than HT terminates scanning; an unterminated string yields the
// empty string rather than an error.
func (p *parser) quotedString() string {
	if p.peek() != '"' {
		return ""
	}
	p.next()
	var b strings.Builder
	closed := false
	for {
		c := p.peek()
		if c == 0 || (isCTL(c) && c != '\t') {
			break
		}
		if c == '"' {
			p.next()
			closed = true
			break
		}
		if c == '\\' {
			p.next()
			e := p.peek()
			if e == 0 || (isCTL(e) && e != '\t') {
				break
			}
			b.WriteByte(e)
			p.next()
			continue
		}
		b.WriteByte(c)
		p.next()
	}
	if !closed {
		return ""
	}
	return b.String()
}

// isMIMECharsetChar reports whether c may appear in an RFC 5987 charset
// name (mime-charset minus the single quote).
func isMIMECharsetChar(c byte) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&',
		'+', '-', '^', '_', '`',
		'{', '}', '~':
		return true
	}
	return false
}

// isAttrChar reports whether c is an RFC 5987 attr-char (token except
// "*", "'" and "%").
func isAttrChar(c byte) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '!', '#', '$', '&', '+', '-', '.',
		'^', '_', '`', '|', '~':
		return true
	}
	return false
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// extValue consumes an RFC 5987 ext-value: charset "'" [ language ] "'"
// value-chars. Percent-encoded octets are decoded; anything that is
// neither an attr-char nor a valid %HH pair terminates the value. A
// missing single-quote delimiter means there is no extended value at all.
func (p *parser) extValue() (DispositionValue, bool) {
	end := p.pos
	for end < len(p.s) && isMIMECharsetChar(p.s[end]) {
		end++
	}
	if end >= len(p.s) || p.s[end] != '\'' {
		return DispositionValue{}, false
	}
	charset := p.s[p.pos:end]
	p.pos = end + 1

	langStart := p.pos
	for p.peek() != '\'' && p.peek() != 0 {
		p.next()
	}
	if p.peek() != '\'' {
		return DispositionValue{}, false
	}
	language := p.s[langStart:p.pos]
	p.next()

	var b strings.Builder
	for {
		c := p.peek()
		if isAttrChar(c) {
			b.WriteByte(c)
			p.next()
			continue
		}
		if c != '%' {
			break
		}
		hi, ok := hexDigit(byteAt(p.s, p.pos+1))
		if !ok {
			break
		}
		lo, ok := hexDigit(byteAt(p.s, p.pos+2))
		if !ok {
			break
		}
		b.WriteByte(hi<<4 | lo)
		p.pos += 3
	}
	return DispositionValue{
		Extended: true,
		Charset:  charset,
		Language: language,
		Value:    b.String(),
	}, true
}

func byteAt(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	return s[i]
}

// setMediaParam stores a parameter, replacing an earlier one of the same
// name while keeping first-seen order.
func setMediaParam(params []Param, name, value string) []Param {
	for i := range params {
		if params[i].Name == name {
			params[i].Value = value
			return params
		}
	}
	return append(params, Param{Name: name, Value: value})
}

func setDispositionParam(params []DispositionParam, name string, value DispositionValue) []DispositionParam {
	for i := range params {
		if params[i].Name == name {
			params[i].Value = value
			return params
		}
	}
	return append(params, DispositionParam{Name: name, Value: value})
}

// ParseMediaType parses a Content-Type value: type "/" subtype followed by
// optional ";" separated parameters. A missing slash is the only hard
// error. Parameter scanning is best-effort: the first malformed delimiter
// stops it, keeping everything parsed so far.
func ParseMediaType(s string) (*MediaType, error) {
	p := &parser{s: s}
	mt := &MediaType{}
	mt.Type = p.token()
	if p.peek() != '/' {
		return nil, &ParseError{Input: s}
	}
	p.next()
	mt.Subtype = p.token()
	for {
		p.skipLWSP()
		if p.peek() != ';' {
			break
		}
		p.next()
		p.skipLWSP()
		name := p.token()
		p.skipLWSP()
		if p.peek() != '=' {
			break
		}
		p.next()
		p.skipLWSP()
		if p.peek() == 0 {
			break
		}
		var value string
		if p.peek() == '"' {
			value = p.quotedString()
		} else {
			value = p.token()
		}
		mt.Params = setMediaParam(mt.Params, strings.ToLower(name), value)
	}
	return mt, nil
}

// ParseContentDisposition parses a Content-Disposition value: a
// case-insensitive disposition type followed by ";" separated parameters.
// A trailing "*" on a parameter name selects ext-value parsing; a
// malformed ext-value stops parameter scanning. Never returns an error.
func ParseContentDisposition(s string) *Disposition {
	p := &parser{s: s}
	d := &Disposition{}
	d.Type = strings.ToLower(p.token())
	for {
		p.skipLWSP()
		if p.peek() != ';' {
			break
		}
		p.next()
		p.skipLWSP()
		name := p.token()
		ext := strings.HasSuffix(name, "*")
		if ext {
			name = name[:len(name)-1]
		}
		p.skipLWSP()
		if p.peek() != '=' {
			break
		}
		p.next()
		p.skipLWSP()
		if p.peek() == 0 {
			break
		}
		var value DispositionValue
		if ext {
			v, ok := p.extValue()
			if !ok {
				break
			}
			value = v
		} else if p.peek() == '"' {
			value = DispositionValue{Value: p.quotedString()}
		} else {
			value = DispositionValue{Value: p.token()}
		}
		d.Params = setDispositionParam(d.Params, strings.ToLower(name), value)
	}
	return d
}

// ParseError reports a Content-Type value without the mandatory
// type "/" subtype structure.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return "headerparse: malformed media type: " + e.Input
}
