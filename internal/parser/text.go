package parser

import (
	"context"
	"os"
	"strings"
)

// TextParser reads plain text and Markdown. Form feeds mark page breaks and
// fenced blocks mark code.
type TextParser struct{}

// Parse implements Parser
func (TextParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseError("read text", err)
	}
	return ParseText(string(data)), nil
}

// ParseText builds a Document from raw text
func ParseText(content string) *Document {
	doc := &Document{
		Lines:      strings.Split(content, "\n"),
		PageStarts: []int{0},
	}

	fenceStart := -1
	for i, line := range doc.Lines {
		if idx := strings.IndexByte(line, '\f'); idx >= 0 {
			start := i + 1
			if strings.TrimLeft(line, "\f") != "" && idx == 0 {
				start = i
			}
			if start < len(doc.Lines) {
				for n := strings.Count(line, "\f"); n > 0; n-- {
					doc.addPageStart(start)
				}
			}
		}

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if fenceStart < 0 {
				fenceStart = i
			} else {
				doc.CodeSpans = append(doc.CodeSpans, Span{Start: fenceStart, End: i + 1})
				fenceStart = -1
			}
		}
	}
	if fenceStart >= 0 {
		doc.CodeSpans = append(doc.CodeSpans, Span{Start: fenceStart, End: len(doc.Lines)})
	}
	return doc
}
