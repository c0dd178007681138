// Package content reads posts from the planning workbook and fills in
// missing bodies with generated text.
package content

import (
	"errors"
	"strings"
)

// ErrEmptyTitle is returned for a post without a title.
var ErrEmptyTitle = errors.New("post title is empty")

// PostContent is one post to publish.
type PostContent struct {
	Title string
	Body  string

	// ImagePaths are local files uploaded in order; empty means random images
	ImagePaths []string

	Tags     []string
	Category string

	// Row is the workbook row the post came from, 0 when built in code
	Row int
}

// Validate checks the fields a publish attempt cannot do without.
func (p PostContent) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// HasBody reports whether the body has non-blank text.
func (p PostContent) HasBody() bool {
	return strings.TrimSpace(p.Body) != ""
}

// splitList splits a ';'-joined cell into trimmed non-empty items.
func splitList(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ";")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
