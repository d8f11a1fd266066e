// Package textnorm turns the rich-text fields of a guide into plain text.
package textnorm

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Empty is returned for absent or blank markup.
const Empty = "N/A"

// PlainText strips all markup from s and returns readable text. Block-level
// elements and <br> start a new line, runs of whitespace collapse to one space,
// every line is trimmed and blank lines are dropped.
//
// Malformed markup never fails; the tokenizer recovers and whatever text it
// finds is returned.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return Empty
	}

	var (
		b    strings.Builder
		skip int // depth inside <script>/<style>
	)
	z := html.NewTokenizer(strings.NewReader(s))

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way we are done
			return collectLines(b.String())

		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(collapseSpace(string(z.Text())))

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skip++
				continue
			}
			if a == atom.Br || isBlock(a) {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if skip > 0 {
					skip--
				}
				continue
			}
			if isBlock(a) {
				b.WriteByte('\n')
			}
		}
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.Dl, atom.Dt, atom.Dd, atom.Hr:
		return true
	}
	return false
}

// collapseSpace folds every whitespace run (newlines included) into one space,
// keeping a single leading/trailing space when the input had one so inline
// fragments like "a <b>b</b> c" stay separated.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func collectLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
