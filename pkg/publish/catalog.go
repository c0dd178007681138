package publish

import (
	"fmt"
	"strings"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/locator"
)

// Catalog holds the authoring page controls.
type Catalog struct {
	// FileInput is the upload input as the page normally renders it
	FileInput locator.Spec

	// UploadArea reveals the file input when clicked
	UploadArea locator.Spec

	// GenericFileInput matches any file input
	GenericFileInput locator.Spec

	Title  locator.Spec
	Body   locator.Spec
	Submit locator.Spec

	TagInput         locator.Spec
	CategorySelector locator.Spec
}

// DefaultCatalog returns the creator platform's image-post controls.
func DefaultCatalog() Catalog {
	return Catalog{
		FileInput:        locator.New("upload input", browser.CSS("input.upload-input[type='file']")).Present(),
		UploadArea:       locator.New("upload area", browser.CSS(".upload-area")),
		GenericFileInput: locator.New("file input", browser.CSS("input[type='file']")).Present(),
		Title:            locator.New("title input", browser.CSS("input.title-input[placeholder*='标题']")).Present(),
		Body: locator.New("body editor",
			browser.CSS("div.tiptap.ProseMirror[contenteditable='true'][role='textbox']"),
		).Present(),
		Submit: locator.New("publish button",
			browser.CSS("button.d-button.d-button-large.--size-icon-large.--size-text-h6.d-button-with-content.--color-static.bold.--color-bg-fill.--color-text-paragraph.custom-button.red.publishBtn[type='button']"),
		),
		TagInput:         locator.New("tag input", browser.CSS("input[name='tags'], .tag-input")).Present(),
		CategorySelector: locator.New("category selector", browser.CSS(".category-selector")),
	}
}

// CategoryOption returns the spec of a category entry in the opened selector.
func CategoryOption(name string) locator.Spec {
	strategies := []browser.Strategy{}
	if !strings.Contains(name, "'") {
		strategies = append(strategies, browser.XPath(fmt.Sprintf("//div[contains(text(), '%s')]", name)))
	}
	strategies = append(strategies, browser.Text(name))
	return locator.New("category "+name, strategies...)
}
