package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TranspileJSX rewrites JSX syntax into React.createElement calls. The
// subset covered is what chart components actually use: elements, fragments,
// string and expression attributes, spreads, expression children, and nested
// elements. Failures come back as transpile-stage errors with guidance.
func TranspileJSX(source string) (string, error) {
	if glyph := findTypographicGlyph(source); glyph != 0 {
		return "", &Error{
			Stage:    StageTranspile,
			Message:  fmt.Sprintf("source contains the typographic character %q", glyph),
			Guidance: "Replace curly quotes and other typographic punctuation with plain ASCII quotes.",
		}
	}

	t := &transpiler{src: []rune(source)}
	out, err := t.run()
	if err != nil {
		return "", err
	}
	return out, nil
}

var typographicGlyphs = []rune{'“', '”', '‘', '’', ' '}

func findTypographicGlyph(source string) rune {
	for _, r := range source {
		for _, g := range typographicGlyphs {
			if r == g {
				return r
			}
		}
	}
	return 0
}

type transpiler struct {
	src      []rune
	pos      int
	lastSig  rune
	lastWord string
	out      strings.Builder
}

func (t *transpiler) run() (string, error) {
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		switch {
		case r == '"' || r == '\'':
			if err := t.copyString(r); err != nil {
				return "", err
			}
		case r == '`':
			if err := t.copyTemplate(); err != nil {
				return "", err
			}
		case r == '/' && t.peek(1) == '/':
			t.copyLineComment()
		case r == '/' && t.peek(1) == '*':
			if err := t.copyBlockComment(); err != nil {
				return "", err
			}
		case r == '<' && t.jsxStartAhead() && t.expressionPosition():
			rendered, err := t.parseElement()
			if err != nil {
				return "", err
			}
			t.out.WriteString(rendered)
			t.lastSig = ')'
			t.lastWord = ""
		default:
			t.emit(r)
			t.pos++
		}
	}
	return t.out.String(), nil
}

func (t *transpiler) peek(n int) rune {
	if t.pos+n >= len(t.src) {
		return 0
	}
	return t.src[t.pos+n]
}

func (t *transpiler) emit(r rune) {
	t.out.WriteRune(r)
	if unicode.IsSpace(r) {
		return
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' {
		t.lastWord += string(r)
	} else {
		t.lastWord = ""
	}
	t.lastSig = r
}

// jsxStartAhead reports whether '<' opens a plausible JSX tag rather than a
// comparison.
func (t *transpiler) jsxStartAhead() bool {
	next := t.peek(1)
	return next == '>' || next == '_' || unicode.IsLetter(next)
}

// expressionPosition is the standard heuristic: a '<' right after an operator,
// an opening bracket, or a flow keyword starts JSX; after a value it is a
// comparison.
func (t *transpiler) expressionPosition() bool {
	switch t.lastWord {
	case "return", "default", "typeof", "case", "do", "else", "in", "of", "yield":
		return true
	}
	if t.lastWord != "" {
		return false
	}
	if t.lastSig == 0 {
		return true
	}
	return strings.ContainsRune("(,=:?&|!{[;>+-*%", t.lastSig)
}

func (t *transpiler) copyString(quote rune) error {
	start := t.pos
	t.out.WriteRune(t.src[t.pos])
	t.pos++
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		t.out.WriteRune(r)
		t.pos++
		if r == '\\' && t.pos < len(t.src) {
			t.out.WriteRune(t.src[t.pos])
			t.pos++
			continue
		}
		if r == quote {
			t.lastSig = quote
			t.lastWord = ""
			return nil
		}
	}
	return t.errAt(start, "unterminated string literal", "")
}

func (t *transpiler) copyTemplate() error {
	start := t.pos
	t.out.WriteRune('`')
	t.pos++
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		t.out.WriteRune(r)
		t.pos++
		switch {
		case r == '\\' && t.pos < len(t.src):
			t.out.WriteRune(t.src[t.pos])
			t.pos++
		case r == '`':
			t.lastSig = '`'
			t.lastWord = ""
			return nil
		}
	}
	return t.errAt(start, "unterminated template literal", "")
}

func (t *transpiler) copyLineComment() {
	for t.pos < len(t.src) && t.src[t.pos] != '\n' {
		t.out.WriteRune(t.src[t.pos])
		t.pos++
	}
}

func (t *transpiler) copyBlockComment() error {
	start := t.pos
	t.out.WriteString("/*")
	t.pos += 2
	for t.pos < len(t.src) {
		if t.src[t.pos] == '*' && t.peek(1) == '/' {
			t.out.WriteString("*/")
			t.pos += 2
			return nil
		}
		t.out.WriteRune(t.src[t.pos])
		t.pos++
	}
	return t.errAt(start, "unterminated comment", "")
}

// parseElement consumes one JSX element starting at '<' and returns its
// React.createElement rendering.
func (t *transpiler) parseElement() (string, error) {
	start := t.pos
	t.pos++ // consume '<'

	tag := t.readTagName()
	props, selfClosing, err := t.parseAttributes(tag)
	if err != nil {
		return "", err
	}

	var children []string
	if !selfClosing {
		children, err = t.parseChildren(tag, start)
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString("React.createElement(")
	b.WriteString(tagExpr(tag))
	b.WriteString(", ")
	b.WriteString(props)
	for _, c := range children {
		b.WriteString(", ")
		b.WriteString(c)
	}
	b.WriteString(")")
	return b.String(), nil
}

func tagExpr(tag string) string {
	if tag == "" {
		return "React.Fragment"
	}
	first := rune(tag[0])
	if unicode.IsLower(first) {
		return strconv.Quote(tag)
	}
	return tag
}

func (t *transpiler) readTagName() string {
	var b strings.Builder
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '.' {
			b.WriteRune(r)
			t.pos++
			continue
		}
		break
	}
	return b.String()
}

// parseAttributes consumes attributes up to and including '>' or '/>'.
func (t *transpiler) parseAttributes(tag string) (props string, selfClosing bool, err error) {
	type prop struct {
		spread bool
		key    string
		value  string
	}
	var list []prop

	for {
		t.skipSpace()
		if t.pos >= len(t.src) {
			return "", false, t.errAt(t.pos, fmt.Sprintf("unterminated <%s> tag", tag), unbalancedGuidance)
		}
		r := t.src[t.pos]
		if r == '/' && t.peek(1) == '>' {
			t.pos += 2
			selfClosing = true
			break
		}
		if r == '>' {
			t.pos++
			break
		}

		if r == '{' {
			expr, err := t.readBraceExpr()
			if err != nil {
				return "", false, err
			}
			expr = strings.TrimSpace(expr)
			expr = strings.TrimPrefix(expr, "...")
			list = append(list, prop{spread: true, value: expr})
			continue
		}

		key := t.readAttrName()
		if key == "" {
			return "", false, t.errAt(t.pos, fmt.Sprintf("invalid syntax in <%s> attributes", tag),
				"Check the attribute list for stray characters.")
		}
		t.skipSpace()
		value := "true"
		if t.pos < len(t.src) && t.src[t.pos] == '=' {
			t.pos++
			t.skipSpace()
			switch {
			case t.pos < len(t.src) && (t.src[t.pos] == '"' || t.src[t.pos] == '\''):
				lit, err := t.readStringLiteral()
				if err != nil {
					return "", false, err
				}
				value = lit
			case t.pos < len(t.src) && t.src[t.pos] == '{':
				expr, err := t.readBraceExpr()
				if err != nil {
					return "", false, err
				}
				value = expr
			default:
				return "", false, t.errAt(t.pos, fmt.Sprintf("attribute %q in <%s> has no value", key, tag),
					"Attribute values must be a quoted string or a braced expression.")
			}
		}
		list = append(list, prop{key: key, value: value})
	}

	if len(list) == 0 {
		return "null", selfClosing, nil
	}

	hasSpread := false
	for _, p := range list {
		if p.spread {
			hasSpread = true
			break
		}
	}

	renderPlain := func(plain []prop) string {
		var b strings.Builder
		b.WriteString("{")
		for i, p := range plain {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(p.key))
			b.WriteString(": ")
			b.WriteString(p.value)
		}
		b.WriteString("}")
		return b.String()
	}

	if !hasSpread {
		return renderPlain(list), selfClosing, nil
	}

	var parts []string
	var pending []prop
	flush := func() {
		if len(pending) > 0 {
			parts = append(parts, renderPlain(pending))
			pending = nil
		}
	}
	for _, p := range list {
		if p.spread {
			flush()
			parts = append(parts, p.value)
			continue
		}
		pending = append(pending, p)
	}
	flush()
	return "Object.assign({}, " + strings.Join(parts, ", ") + ")", selfClosing, nil
}

func (t *transpiler) readAttrName() string {
	var b strings.Builder
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == ':' {
			b.WriteRune(r)
			t.pos++
			continue
		}
		break
	}
	return b.String()
}

// readStringLiteral consumes a quoted attribute value and returns it as a JS
// string literal.
func (t *transpiler) readStringLiteral() (string, error) {
	quote := t.src[t.pos]
	start := t.pos
	t.pos++
	var b strings.Builder
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		t.pos++
		if r == quote {
			return strconv.Quote(b.String()), nil
		}
		b.WriteRune(r)
	}
	return "", t.errAt(start, "unterminated attribute string", "")
}

// readBraceExpr consumes a balanced {expr} container and returns the inner
// expression, transpiled so nested JSX inside it works.
func (t *transpiler) readBraceExpr() (string, error) {
	start := t.pos
	t.pos++ // consume '{'
	depth := 1
	var b strings.Builder
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				t.pos++
				inner := &transpiler{src: []rune(b.String())}
				out, err := inner.run()
				if err != nil {
					return "", err
				}
				return "(" + out + ")", nil
			}
		case '"', '\'', '`':
			if err := skipRawString(t, &b, r); err != nil {
				return "", err
			}
			continue
		}
		b.WriteRune(r)
		t.pos++
	}
	return "", t.errAt(start, "unbalanced braces in expression", unbalancedGuidance)
}

func skipRawString(t *transpiler, b *strings.Builder, quote rune) error {
	start := t.pos
	b.WriteRune(quote)
	t.pos++
	for t.pos < len(t.src) {
		r := t.src[t.pos]
		b.WriteRune(r)
		t.pos++
		if r == '\\' && t.pos < len(t.src) {
			b.WriteRune(t.src[t.pos])
			t.pos++
			continue
		}
		if r == quote {
			return nil
		}
	}
	return t.errAt(start, "unterminated string literal", "")
}

const unbalancedGuidance = "Every JSX tag must be closed: use <Tag ... /> or a matching </Tag>."

// parseChildren consumes element children up to the matching closing tag.
func (t *transpiler) parseChildren(tag string, openPos int) ([]string, error) {
	var children []string
	var text strings.Builder

	flushText := func() {
		trimmed := collapseWhitespace(text.String())
		if trimmed != "" {
			children = append(children, strconv.Quote(trimmed))
		}
		text.Reset()
	}

	for t.pos < len(t.src) {
		r := t.src[t.pos]
		switch {
		case r == '<' && t.peek(1) == '/':
			flushText()
			t.pos += 2
			closing := t.readTagName()
			t.skipSpace()
			if t.pos >= len(t.src) || t.src[t.pos] != '>' {
				return nil, t.errAt(openPos, fmt.Sprintf("malformed closing tag </%s", closing), unbalancedGuidance)
			}
			t.pos++
			if closing != tag {
				return nil, t.errAt(openPos,
					fmt.Sprintf("expected </%s> but found </%s>", displayTag(tag), displayTag(closing)),
					unbalancedGuidance)
			}
			return children, nil
		case r == '<' && t.jsxStartAhead():
			flushText()
			child, err := t.parseElement()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		case r == '{':
			flushText()
			if t.braceCommentAhead() {
				t.skipBraceComment()
				continue
			}
			expr, err := t.readBraceExpr()
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(expr) != "()" {
				children = append(children, expr)
			}
		default:
			text.WriteRune(r)
			t.pos++
		}
	}
	return nil, t.errAt(openPos, fmt.Sprintf("<%s> is never closed", displayTag(tag)), unbalancedGuidance)
}

func displayTag(tag string) string {
	if tag == "" {
		return "fragment"
	}
	return tag
}

func (t *transpiler) braceCommentAhead() bool {
	i := t.pos + 1
	for i < len(t.src) && unicode.IsSpace(t.src[i]) {
		i++
	}
	return i+1 < len(t.src) && t.src[i] == '/' && t.src[i+1] == '*'
}

func (t *transpiler) skipBraceComment() {
	depth := 0
	for t.pos < len(t.src) {
		switch t.src[t.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				t.pos++
				return
			}
		}
		t.pos++
	}
}

func (t *transpiler) skipSpace() {
	for t.pos < len(t.src) && unicode.IsSpace(t.src[t.pos]) {
		t.pos++
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (t *transpiler) errAt(pos int, message, guidance string) error {
	line := 1
	for i := 0; i < pos && i < len(t.src); i++ {
		if t.src[i] == '\n' {
			line++
		}
	}
	return &Error{
		Stage:    StageTranspile,
		Message:  fmt.Sprintf("line %d: %s", line, message),
		Guidance: guidance,
	}
}
