package compose

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/labmate/labmate/internal/parser"
)

const (
	docxBody         = "word/document.xml"
	docxRels         = "word/_rels/document.xml.rels"
	docxContentTypes = "[Content_Types].xml"

	imageRelType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	emuPerPixel = 9525
	// 6 inches, the text width of a letter page with 1.25" margins
	maxImageWidthEMU = 6 * 914400
	// docPr ids of inserted pictures start here to stay clear of the source
	firstDrawingID = 7000
)

var pngDefault = regexp.MustCompile(`(?i)<Default\s+Extension="png"`)

const emptyRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

const emptyContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

// WriteDocx copies the word-processor file at src to w with one picture
// paragraph, plus a caption paragraph, per injection. images holds the local
// PNG file of each injection, in order. The pictures go before the first
// paragraph starting at or after the injection line; injections past the
// last paragraph go at the end of the body.
func WriteDocx(w io.Writer, src string, doc *parser.Document, c *Composition, images []string) error {
	if len(images) != len(c.Injections) {
		return fmt.Errorf("%d images for %d injections", len(images), len(c.Injections))
	}
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer zr.Close()

	parts := make(map[string][]byte)
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
		switch f.Name {
		case docxBody, docxRels, docxContentTypes:
			if parts[f.Name], err = readZipFile(f); err != nil {
				return err
			}
		}
	}
	body, ok := parts[docxBody]
	if !ok {
		return errors.New(docxBody + " not found")
	}

	paragraphs, bodyEnd, err := scanBody(body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", docxBody, err)
	}
	if len(paragraphs) != len(doc.Paragraphs) {
		return fmt.Errorf("document has %d paragraphs, structure has %d", len(paragraphs), len(doc.Paragraphs))
	}

	rels := parts[docxRels]
	if rels == nil {
		rels = []byte(emptyRels)
	}
	ids, err := relationshipIDs(rels)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", docxRels, err)
	}

	var (
		out      bytes.Buffer
		newRels  strings.Builder
		media    = make(map[string]string, len(images))
		mediaOrd []string
		pos      int64
	)
	for i, inj := range c.Injections {
		target := bodyEnd
		if k := sort.SearchInts(doc.Paragraphs, inj.At); k < len(paragraphs) {
			target = paragraphs[k]
		}
		if target < pos {
			return fmt.Errorf("injection %s is out of order", inj.ID)
		}

		cx, cy, err := imageExtent(images[i])
		if err != nil {
			return err
		}
		relID := unique(ids, fmt.Sprintf("rIdShot%d", i+1))
		mediaName := uniqueName(names, fmt.Sprintf("word/media/screenshot-%d.png", i+1))
		media[mediaName] = images[i]
		mediaOrd = append(mediaOrd, mediaName)
		fmt.Fprintf(&newRels, `<Relationship Id="%s" Type="%s" Target="%s"/>`,
			relID, imageRelType, strings.TrimPrefix(mediaName, "word/"))

		out.Write(body[pos:target])
		pos = target
		writePicture(&out, firstDrawingID+i, inj, relID, cx, cy)
	}
	out.Write(body[pos:])

	rels, err = insertBefore(rels, "</Relationships>", newRels.String())
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", docxRels, err)
	}
	contentTypes := parts[docxContentTypes]
	if contentTypes == nil {
		contentTypes = []byte(emptyContentTypes)
	}
	if !pngDefault.Match(contentTypes) {
		if contentTypes, err = insertBefore(contentTypes, "</Types>", `<Default Extension="png" ContentType="image/png"/>`); err != nil {
			return fmt.Errorf("failed to update %s: %w", docxContentTypes, err)
		}
	}

	zw := zip.NewWriter(w)
	for _, f := range zr.File {
		switch f.Name {
		case docxBody, docxRels, docxContentTypes:
			continue
		}
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("failed to copy %s: %w", f.Name, err)
		}
	}
	for _, part := range []struct {
		name string
		data []byte
	}{
		{docxContentTypes, contentTypes},
		{docxBody, out.Bytes()},
		{docxRels, rels},
	} {
		if err := writeZipFile(zw, part.name, bytes.NewReader(part.data)); err != nil {
			return err
		}
	}
	for _, name := range mediaOrd {
		if err := copyIntoZip(zw, name, media[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

// scanBody returns the byte offset of every paragraph the parser turns into
// lines, in the same order, and the offset where body content ends
func scanBody(data []byte) ([]int64, int64, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		paragraphs []int64
		open       int64 = -1
		bodyEnd    int64 = -1
		depth      int
		bodyDepth  = -1
	)
	for {
		off := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "body":
				bodyDepth = depth
			case "p":
				open = off
			case "sectPr":
				if depth == bodyDepth+1 && bodyEnd < 0 {
					bodyEnd = off
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if open >= 0 {
					paragraphs = append(paragraphs, open)
					open = -1
				}
			case "body":
				if bodyEnd < 0 {
					bodyEnd = off
				}
			}
			depth--
		}
	}
	if bodyEnd < 0 {
		return nil, 0, errors.New("document body not found")
	}
	return paragraphs, bodyEnd, nil
}

func writePicture(buf *bytes.Buffer, id int, inj Injection, relID string, cx, cy int64) {
	name := fmt.Sprintf("Screenshot %s", inj.ID)
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(name))

	fmt.Fprintf(buf, `<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:drawing>`+
		`<wp:inline xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="%s"/>`+
		`<wp:cNvGraphicFramePr><a:graphicFrameLocks xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" noChangeAspect="1"/></wp:cNvGraphicFramePr>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="0" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		cx, cy, id, escaped.String(), escaped.String(), relID, cx, cy)

	if inj.Caption == "" {
		return
	}
	buf.WriteString(`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:i/></w:rPr><w:t xml:space="preserve">`)
	_ = xml.EscapeText(buf, []byte(inj.Caption))
	buf.WriteString(`</w:t></w:r></w:p>`)
}

// imageExtent returns the size of a PNG in EMUs, scaled down to the text width
func imageExtent(path string) (int64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read screenshot %s: %w", path, err)
	}
	cx := int64(cfg.Width) * emuPerPixel
	cy := int64(cfg.Height) * emuPerPixel
	if cx > maxImageWidthEMU {
		cy = cy * maxImageWidthEMU / cx
		cx = maxImageWidthEMU
	}
	return cx, cy, nil
}

func relationshipIDs(data []byte) (map[string]bool, error) {
	var rels struct {
		Items []struct {
			ID string `xml:"Id,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rels.Items))
	for _, r := range rels.Items {
		ids[r.ID] = true
	}
	return ids, nil
}

func unique(taken map[string]bool, name string) string {
	candidate := name
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	taken[candidate] = true
	return candidate
}

func uniqueName(taken map[string]bool, name string) string {
	ext := name[strings.LastIndexByte(name, '.'):]
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
	taken[candidate] = true
	return candidate
}

func insertBefore(data []byte, closing, fragment string) ([]byte, error) {
	i := bytes.LastIndex(data, []byte(closing))
	if i < 0 {
		return nil, fmt.Errorf("%s not found", closing)
	}
	out := make([]byte, 0, len(data)+len(fragment))
	out = append(out, data[:i]...)
	out = append(out, fragment...)
	return append(out, data[i:]...), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, nil
}

func writeZipFile(zw *zip.Writer, name string, r io.Reader) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func copyIntoZip(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer f.Close()
	return writeZipFile(zw, name, f)
}
