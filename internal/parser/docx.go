package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// DocxParser reads the paragraphs of a word-processor file. Explicit page
// breaks and the page breaks last rendered by the editor become page starts.
// Paragraphs styled as code, or whose text is set entirely in a monospace
// font, become code spans.
type DocxParser struct{}

// Parse implements Parser
func (DocxParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, parseError("open docx", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, parseError("open docx body", err)
		}
		defer rc.Close()
		doc, err := parseDocxBody(rc)
		if err != nil {
			return nil, parseError("read docx body", err)
		}
		return doc, nil
	}
	return nil, parseError("open docx", errors.New(docxBody+" not found"))
}

var monospaceFonts = []string{"courier", "consolas", "menlo", "monaco", "mono"}

type docxParagraph struct {
	text        strings.Builder
	breakBefore bool
	breakAfter  bool
	codeStyle   bool
	// runs holding text, and how many of those are monospace
	textRuns int
	monoRuns int
}

// code reports whether the paragraph holds program text
func (p *docxParagraph) code() bool {
	return p.codeStyle || (p.textRuns > 0 && p.monoRuns == p.textRuns)
}

// docxRun tracks the run being read
type docxRun struct {
	mono    bool
	hasText bool
}

func parseDocxBody(r io.Reader) (*Document, error) {
	doc := &Document{PageStarts: []int{0}}
	dec := xml.NewDecoder(r)

	var (
		para        *docxParagraph
		run         *docxRun
		inText      bool
		pendingPage bool
	)

	flush := func() {
		if pendingPage || para.breakBefore {
			doc.addPageStart(len(doc.Lines))
		}
		pendingPage = para.breakAfter

		start := len(doc.Lines)
		doc.Paragraphs = append(doc.Paragraphs, start)
		doc.Lines = append(doc.Lines, strings.Split(para.text.String(), "\n")...)
		if para.code() {
			doc.CodeSpans = append(doc.CodeSpans, Span{Start: start, End: len(doc.Lines)})
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para = &docxParagraph{}
			case "r":
				if para != nil {
					run = &docxRun{}
				}
			case "t":
				inText = true
			case "tab":
				if para != nil {
					para.text.WriteByte('\t')
				}
			case "br", "cr":
				if para == nil {
					continue
				}
				if attr(t, "type") == "page" {
					markBreak(para)
				} else {
					para.text.WriteByte('\n')
				}
			case "lastRenderedPageBreak":
				if para != nil {
					markBreak(para)
				}
			case "pageBreakBefore":
				if para != nil && attr(t, "val") != "0" && attr(t, "val") != "false" {
					para.breakBefore = true
				}
			case "pStyle":
				if para != nil && isCodeStyle(attr(t, "val")) {
					para.codeStyle = true
				}
			case "rFonts":
				if run != nil && isMonospace(attr(t, "ascii")) {
					run.mono = true
				}
			}
		case xml.CharData:
			if inText && para != nil {
				para.text.Write(t)
				if run != nil && strings.TrimSpace(string(t)) != "" {
					run.hasText = true
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				if run != nil && para != nil && run.hasText {
					para.textRuns++
					if run.mono {
						para.monoRuns++
					}
				}
				run = nil
			case "p":
				if para != nil {
					flush()
					para = nil
				}
			}
		}
	}
	return doc, nil
}

// markBreak records a page break at the current position of para
func markBreak(para *docxParagraph) {
	if para.text.Len() == 0 {
		para.breakBefore = true
		return
	}
	para.breakAfter = true
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func isCodeStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.Contains(s, "code") || strings.Contains(s, "source") || strings.Contains(s, "verbatim")
}

func isMonospace(font string) bool {
	f := strings.ToLower(font)
	for _, m := range monospaceFonts {
		if strings.Contains(f, m) {
			return true
		}
	}
	return false
}
