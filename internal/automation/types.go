// Package automation turns a natural-language instruction into one browser
// operation or one structured extraction. It performs a single model call per
// instruction and never plans across steps.
package automation

import (
	"context"
	"fmt"
)

// RefAttribute is the DOM attribute a Page uses to tag the elements of its
// latest snapshot so an Action can address them by Ref.
const RefAttribute = "data-dispatch-ref"

// Element is one interactive node of a page snapshot.
type Element struct {
	Ref         int    `json:"ref"`
	Tag         string `json:"tag"`
	Role        string `json:"role,omitempty"`
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Href        string `json:"href,omitempty"`
}

// Selector returns the CSS selector addressing the element in its page.
func (e Element) Selector() string {
	return fmt.Sprintf(`[%s="%d"]`, RefAttribute, e.Ref)
}

// PageSnapshot is the model-facing view of a page.
type PageSnapshot struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`
	Text     string    `json:"text"`
}

// Method is the kind of operation an Action performs.
type Method string

const (
	MethodClick  Method = "click"
	MethodFill   Method = "fill"
	MethodPress  Method = "press"
	MethodScroll Method = "scroll"
	MethodNone   Method = "none"
)

func (m Method) valid() bool {
	switch m {
	case MethodClick, MethodFill, MethodPress, MethodScroll, MethodNone:
		return true
	}
	return false
}

// needsElement reports whether the method addresses a specific element.
func (m Method) needsElement() bool {
	return m == MethodClick || m == MethodFill
}

// Action is a resolved operation against an element of the last snapshot.
// Element is nil for page-level methods (press without a target, scroll).
type Action struct {
	Method  Method
	Element *Element
	// Value is the text to fill, the key to press, or the scroll direction.
	Value string
}

// Page is the browser surface the engine drives.
type Page interface {
	// Snapshot tags the interactive elements of the current page and returns them
	// together with the page's visible text.
	Snapshot(ctx context.Context) (*PageSnapshot, error)
	// Perform executes action against the page.
	Perform(ctx context.Context, action Action) error
}
