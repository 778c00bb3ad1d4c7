package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser validates a PDF, dumps each page's content stream and recovers
// the text drawn by the text-showing operators. Each page contributes a
// page start.
type PDFParser struct{}

var pageSuffix = regexp.MustCompile(`(\d+)\.[^.]*$`)

// Parse implements Parser
func (PDFParser) Parse(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.ValidateFile(path, conf); err != nil {
		return nil, parseError("validate pdf", err)
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, parseError("count pdf pages", err)
	}

	outDir, err := os.MkdirTemp("", "labmate-pdf-*")
	if err != nil {
		return nil, parseError("create content dir", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return nil, parseError("extract pdf content", err)
	}

	pages, err := readContentDumps(outDir)
	if err != nil {
		return nil, parseError("read pdf content", err)
	}

	doc := &Document{PageStarts: []int{0}}
	for p := 1; p <= pageCount; p++ {
		if p > 1 {
			doc.addPageStart(len(doc.Lines))
		}
		doc.Lines = append(doc.Lines, ContentLines(pages[p])...)
	}
	return doc, nil
}

// readContentDumps maps page numbers to the content streams written by pdfcpu.
// Pages with several streams are concatenated in file name order.
func readContentDumps(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	pages := make(map[int]string)
	for _, name := range names {
		m := pageSuffix.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		page, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("content file %s: %w", name, err)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pages[page] += string(data) + "\n"
	}
	return pages, nil
}
