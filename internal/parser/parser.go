// Package parser turns uploaded files into ordered lines of text with page
// boundaries and known code regions
package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/labmate/labmate/internal/types"
)

// Span is a half-open range of line indices
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line lies inside the span
func (s Span) Contains(line int) bool {
	return line >= s.Start && line < s.End
}

// Document is the extracted structure of an uploaded file
type Document struct {
	// Lines are the extracted lines, unmodified
	Lines []string `json:"lines"`
	// PageStarts holds the index of the first line of each page. Starts never
	// decrease; a page without lines repeats the start of the following page.
	// Nil means the format carried no page information.
	PageStarts []int `json:"page_starts"`
	// CodeSpans are regions the source format marks as program text
	CodeSpans []Span `json:"code_spans,omitempty"`
	// Paragraphs holds the first line of each source paragraph, in document
	// order. Only word-processor files set it.
	Paragraphs []int `json:"paragraphs,omitempty"`
}

// Parser extracts a Document from a file on disk
type Parser interface {
	Parse(ctx context.Context, path string) (*Document, error)
}

// ForType returns the parser for a file type
func ForType(ft types.FileType) (Parser, error) {
	switch ft {
	case types.FileTypeText:
		return TextParser{}, nil
	case types.FileTypeDocx:
		return DocxParser{}, nil
	case types.FileTypePDF:
		return PDFParser{}, nil
	default:
		return nil, types.NewError(types.KindParse, "select parser", fmt.Errorf("%w: %q", types.ErrUnsupportedFile, ft))
	}
}

// ParseFile picks a parser by file name and parses path
func ParseFile(ctx context.Context, path string) (*Document, types.FileType, error) {
	ft, err := types.FileTypeFromName(path)
	if err != nil {
		return nil, "", types.NewError(types.KindParse, "select parser", err)
	}
	p, err := ForType(ft)
	if err != nil {
		return nil, "", err
	}
	doc, err := p.Parse(ctx, path)
	if err != nil {
		return nil, ft, err
	}
	return doc, ft, nil
}

// Text returns line i without page-break control characters
func (d *Document) Text(i int) string {
	return strings.Trim(d.Lines[i], "\f")
}

// PageCount returns the number of pages, or 0 without page information
func (d *Document) PageCount() int {
	return len(d.PageStarts)
}

// PageOf returns the 0-based page containing line
func (d *Document) PageOf(line int) (int, bool) {
	if len(d.PageStarts) == 0 || line < 0 || line >= len(d.Lines) {
		return 0, false
	}
	p := sort.Search(len(d.PageStarts), func(i int) bool { return d.PageStarts[i] > line }) - 1
	if p < 0 {
		return 0, false
	}
	return p, true
}

// PageEnd returns the exclusive end line of page p
func (d *Document) PageEnd(p int) (int, bool) {
	if p < 0 || p >= len(d.PageStarts) {
		return 0, false
	}
	if p+1 < len(d.PageStarts) {
		return d.PageStarts[p+1], true
	}
	return len(d.Lines), true
}

// InCode reports whether line falls inside a code span supplied by the format
func (d *Document) InCode(line int) bool {
	_, ok := d.CodeSpanAt(line)
	return ok
}

// CodeSpanAt returns the code span containing line
func (d *Document) CodeSpanAt(line int) (Span, bool) {
	for _, s := range d.CodeSpans {
		if s.Contains(line) {
			return s, true
		}
	}
	return Span{}, false
}

// addPageStart records a page starting at line. A start equal to the previous
// one records an empty page; a smaller one is ignored.
func (d *Document) addPageStart(line int) {
	if n := len(d.PageStarts); n > 0 && d.PageStarts[n-1] > line {
		return
	}
	d.PageStarts = append(d.PageStarts, line)
}

func parseError(op string, err error) error {
	return types.NewError(types.KindParse, op, fmt.Errorf("%w: %w", types.ErrParse, err))
}
