package automation

import (
	"fmt"
	"strings"
)

const actSystemPrompt = `You control a web browser for a user. You receive an instruction and the interactive elements of the current page.
Choose exactly one operation that best carries out the instruction and answer with a single JSON object:
{"element": <ref number or -1>, "method": "click" | "fill" | "press" | "scroll" | "none", "value": "<text>", "description": "<one sentence>"}

- click: click the element.
- fill: replace the element's content with value.
- press: press the key named in value (e.g. "Enter"), on the element if one is given.
- scroll: scroll the page; value is "up" or "down".
- none: the instruction cannot be carried out on this page; explain why in description.`

const extractSystemPrompt = `You extract information from web pages. You receive an instruction, an optional description of the desired output shape, and the page content.
Answer with a single JSON value that satisfies the instruction and follows the output description when one is given. Do not add commentary.`

func buildActPrompt(instruction string, snap *PageSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instruction: %s\n\n", instruction)
	fmt.Fprintf(&sb, "Page: %s (%s)\n\n", snap.Title, snap.URL)
	writeElements(&sb, snap.Elements)
	return sb.String()
}

func buildExtractPrompt(instruction, schema string, snap *PageSnapshot, textOnly bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instruction: %s\n\n", instruction)
	if schema != "" {
		fmt.Fprintf(&sb, "Output description: %s\n\n", schema)
	}
	fmt.Fprintf(&sb, "Page: %s (%s)\n\n", snap.Title, snap.URL)
	if !textOnly && len(snap.Elements) > 0 {
		writeElements(&sb, snap.Elements)
		sb.WriteString("\n")
	}
	sb.WriteString("Page text:\n")
	sb.WriteString(snap.Text)
	return sb.String()
}

func writeElements(sb *strings.Builder, elements []Element) {
	sb.WriteString("Interactive elements:\n")
	if len(elements) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, el := range elements {
		fmt.Fprintf(sb, "[%d] <%s", el.Ref, el.Tag)
		if el.Type != "" {
			fmt.Fprintf(sb, " type=%q", el.Type)
		}
		if el.Role != "" {
			fmt.Fprintf(sb, " role=%q", el.Role)
		}
		if el.Placeholder != "" {
			fmt.Fprintf(sb, " placeholder=%q", el.Placeholder)
		}
		if el.Href != "" {
			fmt.Fprintf(sb, " href=%q", el.Href)
		}
		fmt.Fprintf(sb, "> %s\n", el.Text)
	}
}
