package compose

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// AppendixPage is one screenshot page of the appendix
type AppendixPage struct {
	Image   string
	Caption string
}

const captionDescription = "font:Helvetica, points:10, pos:bl, off:20 20, scale:1 abs, rot:0, fillc:#000000, opacity:1"

// WriteAppendixPDF writes one page per screenshot, in order, to out.
// A caption is stamped at the bottom of its page.
func WriteAppendixPDF(pages []AppendixPage, out string) error {
	if len(pages) == 0 {
		return errors.New("appendix has no pages")
	}
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear %s: %w", out, err)
	}

	conf := model.NewDefaultConfiguration()
	images := make([]string, len(pages))
	for i, p := range pages {
		images[i] = p.Image
	}
	if err := api.ImportImagesFile(images, out, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return fmt.Errorf("failed to import screenshots: %w", err)
	}

	for i, p := range pages {
		if p.Caption == "" {
			continue
		}
		selected := []string{strconv.Itoa(i + 1)}
		if err := api.AddTextWatermarksFile(out, "", selected, true, p.Caption, captionDescription, conf); err != nil {
			return fmt.Errorf("failed to caption page %d: %w", i+1, err)
		}
	}
	return nil
}
