package publish

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// FilterBMP drops every character above U+FFFF. The editor cannot take them.
// Invalid UTF-8 bytes are kept as they are.
func FilterBMP(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r <= 0xFFFF {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// pageText returns the visible text of an HTML document, one text node per line.
func pageText(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isSkippedElement(n.Data) {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}

func isSkippedElement(tag string) bool {
	switch strings.ToLower(tag) {
	case "script", "style", "noscript", "template", "svg":
		return true
	}
	return false
}
