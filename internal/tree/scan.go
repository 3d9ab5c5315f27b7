package tree

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Attr is one marker attribute with its original-case name.
type Attr struct {
	Name     string
	Value    string
	HasValue bool
}

// Marker is a component marker as written in the source markup.
type Marker struct {
	Ref         int
	Name        string
	Attrs       []Attr
	SelfClosing bool
	// StartTag is the original start tag text, with any self-closing slash
	// removed.
	StartTag string
	// Start and End are the byte offsets of the marker in the source, end
	// tag included. A marker closed implicitly ends where its closer starts.
	Start, End int

	parent   *Marker
	children []*Marker
	literals []span
}

type span struct {
	start, end int
	text       bool
}

type scanResult struct {
	markers []*Marker
	// appendAt is where appended nodes go: before </body>, else before
	// </html>, else at the end.
	appendAt int
}

// openElement is an entry of the element stack kept while scanning.
type openElement struct {
	name   string // lower case
	marker *Marker
	// literalOf is the marker this plain element is a direct child of
	literalOf *Marker
	start     int
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// scan tokenizes markup once and records every marker with its byte span,
// its marker parent and the spans of its literal children. Nesting follows
// the tags as written; no HTML tree construction rules apply, so markers in
// table or paragraph context stay where the author put them.
func scan(markup string, isMarker Predicate) (*scanResult, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	res := &scanResult{}

	var (
		stack   []*openElement
		offset  int
		bodyEnd = -1
		htmlEnd = -1
	)

	owner := func() *Marker {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1].marker
	}
	nearest := func() *Marker {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].marker != nil {
				return stack[i].marker
			}
		}
		return nil
	}
	addLiteral := func(m *Marker, s span) {
		if n := len(m.literals); s.text && n > 0 && m.literals[n-1].text && m.literals[n-1].end == s.start {
			m.literals[n-1].end = s.end
			return
		}
		m.literals = append(m.literals, s)
	}
	// closeTo pops stack[i:]. The element at i ends at end, the ones above
	// it were left open and end at at.
	closeTo := func(i, at, end int) {
		for j := len(stack) - 1; j >= i; j-- {
			e := stack[j]
			stop := at
			if j == i {
				stop = end
			}
			if e.marker != nil {
				e.marker.End = stop
			}
			if e.literalOf != nil {
				addLiteral(e.literalOf, span{start: e.start, end: stop})
			}
		}
		stack = stack[:i]
	}

	for {
		tt := z.Next()
		raw := z.Raw()
		start := offset
		offset += len(raw)

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			closeTo(0, len(markup), len(markup))
			switch {
			case bodyEnd >= 0:
				res.appendAt = bodyEnd
			case htmlEnd >= 0:
				res.appendAt = htmlEnd
			default:
				res.appendAt = len(markup)
			}
			return res, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name := rawTagName(raw, 1)
			if isMarker(name) {
				rawCopy := string(raw)
				tok := z.Token()
				m := &Marker{
					Ref:         len(res.markers),
					Name:        name,
					Attrs:       zipAttrs(rawCopy, tok.Attr),
					SelfClosing: tt == html.SelfClosingTagToken,
					StartTag:    stripSelfClose(rawCopy),
					Start:       start,
					End:         offset,
					parent:      nearest(),
				}
				if m.parent != nil {
					m.parent.children = append(m.parent.children, m)
				}
				res.markers = append(res.markers, m)
				// a marker called Title or Textarea is followed by markup
				z.NextIsNotRawText()
				if !m.SelfClosing {
					stack = append(stack, &openElement{name: strings.ToLower(name), marker: m, start: start})
				}
				continue
			}

			lower := strings.ToLower(name)
			o := owner()
			if tt == html.SelfClosingTagToken || voidElements[lower] {
				if o != nil {
					addLiteral(o, span{start: start, end: offset})
				}
				continue
			}
			stack = append(stack, &openElement{name: lower, literalOf: o, start: start})

		case html.EndTagToken:
			lower := strings.ToLower(rawTagName(raw, 2))
			i := len(stack) - 1
			for i >= 0 && stack[i].name != lower {
				i--
			}
			if i >= 0 {
				closeTo(i, start, offset)
			}
			if nearest() == nil {
				switch lower {
				case "body":
					bodyEnd = start
				case "html":
					htmlEnd = start
				}
			}

		case html.TextToken:
			if o := owner(); o != nil && strings.TrimSpace(string(raw)) != "" {
				addLiteral(o, span{start: start, end: offset, text: true})
			}

		case html.CommentToken:
			if o := owner(); o != nil {
				addLiteral(o, span{start: start, end: offset})
			}
		}
	}
}

// hasMarker reports whether markup contains at least one marker start tag.
func hasMarker(markup string, isMarker Predicate) bool {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			if isMarker(rawTagName(z.Raw(), 1)) {
				return true
			}
		}
	}
}

// rawTagName reads the tag name starting at offset in a raw tag, keeping its
// original case.
func rawTagName(raw []byte, offset int) string {
	if len(raw) <= offset {
		return ""
	}
	end := offset
	for end < len(raw) && !isTagDelim(raw[end]) {
		end++
	}
	return string(raw[offset:end])
}

func isTagDelim(c byte) bool {
	switch c {
	case ' ', '\n', '\r', '\t', '\f', '/', '>':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\n', '\r', '\t', '\f':
		return true
	}
	return false
}

func stripSelfClose(raw string) string {
	trimmed := strings.TrimSuffix(raw, ">")
	trimmed = strings.TrimRight(trimmed, " \n\r\t\f")
	if strings.HasSuffix(trimmed, "/") {
		return strings.TrimRight(strings.TrimSuffix(trimmed, "/"), " \n\r\t\f") + ">"
	}
	return raw
}

type rawAttr struct {
	name     string
	hasValue bool
}

// rawAttrs lists attribute names in original case, following the
// tokenizer's rules for where names and values end.
func rawAttrs(raw string) []rawAttr {
	i := 1
	for i < len(raw) && !isTagDelim(raw[i]) {
		i++
	}

	var attrs []rawAttr
	for i < len(raw) {
		for i < len(raw) && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		start := i
		i++ // a leading '=' belongs to the name
		for i < len(raw) && !isTagDelim(raw[i]) && raw[i] != '=' {
			i++
		}
		attr := rawAttr{name: raw[start:i]}

		j := i
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		if j < len(raw) && raw[j] == '=' {
			attr.hasValue = true
			j++
			for j < len(raw) && isSpace(raw[j]) {
				j++
			}
			if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
				quote := raw[j]
				j++
				for j < len(raw) && raw[j] != quote {
					j++
				}
				j++
			} else {
				for j < len(raw) && !isSpace(raw[j]) && raw[j] != '>' {
					j++
				}
			}
			i = j
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

// zipAttrs pairs original-case names with the tokenizer's decoded values.
// If the two disagree on the attribute count the lower-cased keys are used.
func zipAttrs(raw string, tokAttrs []html.Attribute) []Attr {
	names := rawAttrs(raw)
	attrs := make([]Attr, len(tokAttrs))
	for i, a := range tokAttrs {
		attrs[i] = Attr{Name: a.Key, Value: a.Val, HasValue: a.Val != ""}
		if len(names) == len(tokAttrs) && strings.EqualFold(names[i].name, a.Key) {
			attrs[i].Name = names[i].name
			attrs[i].HasValue = names[i].hasValue
		}
	}
	return attrs
}
