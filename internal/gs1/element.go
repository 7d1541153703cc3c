package gs1

import (
	"bytes"
	"strings"
)

// GroupSeparator is the ASCII GS character that stands in for FNC1 between
// element strings in the data stream.
const GroupSeparator byte = 0x1D

// Element is one AI with its data value.
type Element struct {
	AI    AI
	Value string
}

// NewElement validates value against ai and returns the element.
func NewElement(ai AI, value string) (Element, error) {
	if err := ai.Validate(value); err != nil {
		return Element{}, err
	}
	return Element{AI: ai, Value: value}, nil
}

// Concatenate joins elements in the given order. A group separator follows
// every element whose AI is not predefined-length, except the last one.
// Elements are assumed to be validated. The symbol-start FNC1 is not
// included; that belongs to the symbol encoder.
func Concatenate(elements []Element) []byte {
	var buf bytes.Buffer
	for i, el := range elements {
		buf.WriteString(el.AI.Code)
		buf.WriteString(el.Value)
		if i < len(elements)-1 && !el.AI.Predefined() {
			buf.WriteByte(GroupSeparator)
		}
	}
	return buf.Bytes()
}

// HRI renders the human readable interpretation, e.g. "(01)09506000134352(10)ABC".
func HRI(elements []Element) string {
	var b strings.Builder
	for _, el := range elements {
		b.WriteByte('(')
		b.WriteString(el.AI.Code)
		b.WriteByte(')')
		b.WriteString(el.Value)
	}
	return b.String()
}

// Printable replaces group separators with "<GS>" for logs and previews.
func Printable(data []byte) string {
	return strings.ReplaceAll(string(data), string(GroupSeparator), "<GS>")
}
