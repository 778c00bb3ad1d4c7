package sandbox

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/labmate/labmate/internal/types"
)

const (
	glyphWidth  = 7
	lineHeight  = 16
	padding     = 12
	titleHeight = 24
	minColumns  = 80
	maxColumns  = 160
	maxLines    = 120
	tabWidth    = 4
)

// Frame is what a screenshot shows
type Frame struct {
	Theme    types.Theme
	Title    string
	Code     string
	Output   string
	ExitCode int
}

type palette struct {
	background color.Color
	titleBar   color.Color
	titleText  color.Color
	text       color.Color
	prompt     color.Color
	gutter     color.Color
	divider    color.Color
	errorText  color.Color
}

var (
	plainPalette = palette{
		background: color.RGBA{0xff, 0xff, 0xff, 0xff},
		titleBar:   color.RGBA{0xdd, 0xdd, 0xdd, 0xff},
		titleText:  color.RGBA{0x20, 0x20, 0x20, 0xff},
		text:       color.RGBA{0x00, 0x00, 0x00, 0xff},
		prompt:     color.RGBA{0x80, 0x00, 0x00, 0xff},
		gutter:     color.RGBA{0x88, 0x88, 0x88, 0xff},
		divider:    color.RGBA{0xbb, 0xbb, 0xbb, 0xff},
		errorText:  color.RGBA{0xc0, 0x00, 0x00, 0xff},
	}
	editorPalette = palette{
		background: color.RGBA{0x1e, 0x1e, 0x1e, 0xff},
		titleBar:   color.RGBA{0x32, 0x32, 0x33, 0xff},
		titleText:  color.RGBA{0xcc, 0xcc, 0xcc, 0xff},
		text:       color.RGBA{0xd4, 0xd4, 0xd4, 0xff},
		prompt:     color.RGBA{0x4e, 0xc9, 0xb0, 0xff},
		gutter:     color.RGBA{0x85, 0x85, 0x85, 0xff},
		divider:    color.RGBA{0x44, 0x44, 0x44, 0xff},
		errorText:  color.RGBA{0xf4, 0x87, 0x71, 0xff},
	}
)

type styledLine struct {
	text    string
	color   color.Color
	divider bool
}

// Renderer draws console and editor screenshots with a fixed-width bitmap font
type Renderer struct {
	face font.Face
}

// NewRenderer creates a Renderer
func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

// Render draws f into a new image
func (r *Renderer) Render(f Frame) *image.RGBA {
	pal := plainPalette
	var lines []styledLine
	if f.Theme == types.ThemeEditor {
		pal = editorPalette
		lines = editorLines(f, pal)
	} else {
		lines = consoleLines(f, pal)
	}

	cols := minColumns
	for _, l := range lines {
		if n := utf8.RuneCountInString(l.text); n > cols {
			cols = n
		}
	}
	if cols > maxColumns {
		cols = maxColumns
	}

	width := cols*glyphWidth + 2*padding
	height := titleHeight + len(lines)*lineHeight + 2*padding
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(pal.background), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, width, titleHeight), image.NewUniform(pal.titleBar), image.Point{}, draw.Src)
	r.text(img, pal.titleText, padding, 17, clip(f.Title, cols))

	y := titleHeight + padding + 12
	for _, l := range lines {
		if l.divider {
			mid := y - 4
			draw.Draw(img, image.Rect(0, mid, width, mid+1), image.NewUniform(pal.divider), image.Point{}, draw.Src)
		} else {
			r.text(img, l.color, padding, y, clip(l.text, cols))
		}
		y += lineHeight
	}
	return img
}

// Capture renders f and writes it atomically to path. Nothing is left
// behind when ctx is done before the file is in place.
func (r *Renderer) Capture(ctx context.Context, f Frame, path string) (*Image, error) {
	img := r.Render(f)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".capture-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create screenshot file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := png.Encode(tmp, img); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpName)
		return nil, err
	}
	info, err := os.Stat(tmpName)
	if err != nil {
		_ = os.Remove(tmpName)
		return nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("failed to place screenshot: %w", err)
	}

	b := img.Bounds()
	return &Image{Path: path, Width: b.Dx(), Height: b.Dy(), Size: info.Size()}, nil
}

func (r *Renderer) text(dst draw.Image, c color.Color, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// consoleLines mimics an interactive shell restarting to run the script
func consoleLines(f Frame, pal palette) []styledLine {
	lines := []styledLine{{text: fmt.Sprintf("= RESTART: %s =", f.Title), color: pal.prompt}}
	for _, l := range splitOutput(f.Output) {
		lines = append(lines, styledLine{text: l, color: outputColor(l, pal)})
	}
	lines = append(lines, styledLine{text: ">>> ", color: pal.prompt})
	return truncate(lines, pal)
}

// editorLines shows numbered source above a terminal pane
func editorLines(f Frame, pal palette) []styledLine {
	code := splitOutput(f.Code)
	width := len(fmt.Sprint(len(code)))
	var lines []styledLine
	for i, l := range code {
		lines = append(lines, styledLine{text: fmt.Sprintf("%*d  %s", width, i+1, l), color: pal.text})
	}
	lines = append(lines, styledLine{divider: true}, styledLine{text: "TERMINAL", color: pal.gutter})
	lines = append(lines, styledLine{text: "$ run " + f.Title, color: pal.prompt})
	for _, l := range splitOutput(f.Output) {
		lines = append(lines, styledLine{text: l, color: outputColor(l, pal)})
	}
	lines = append(lines, styledLine{text: fmt.Sprintf("Process exited with code %d", f.ExitCode), color: pal.gutter})
	return truncate(lines, pal)
}

func outputColor(line string, pal palette) color.Color {
	if strings.HasPrefix(line, "Traceback") || strings.Contains(line, "Error:") {
		return pal.errorText
	}
	return pal.text
}

func splitOutput(s string) []string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.ReplaceAll(l, "\t", strings.Repeat(" ", tabWidth))
	}
	return lines
}

func truncate(lines []styledLine, pal palette) []styledLine {
	if len(lines) <= maxLines {
		return lines
	}
	hidden := len(lines) - maxLines + 1
	kept := append([]styledLine{}, lines[:maxLines-1]...)
	return append(kept, styledLine{text: fmt.Sprintf("... %d more lines", hidden), color: pal.gutter})
}

// clip shortens s to cols runes
func clip(s string, cols int) string {
	if utf8.RuneCountInString(s) <= cols {
		return s
	}
	return string([]rune(s)[:cols-3]) + "..."
}
