package compose

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/labmate/labmate/internal/parser"
)

// WriteMarkdown writes the document lines unchanged with one image line per
// injection. Removing the injected lines yields the original text.
func WriteMarkdown(w io.Writer, doc *parser.Document, c *Composition) error {
	bw := bufio.NewWriter(w)
	next := 0
	first := true
	writeLine := func(s string) {
		if !first {
			bw.WriteByte('\n')
		}
		first = false
		bw.WriteString(s)
	}

	for i, line := range doc.Lines {
		for next < len(c.Injections) && c.Injections[next].At == i {
			writeLine(imageLine(c.Injections[next]))
			next++
		}
		writeLine(line)
	}
	for ; next < len(c.Injections); next++ {
		writeLine(imageLine(c.Injections[next]))
	}
	return bw.Flush()
}

func imageLine(inj Injection) string {
	alt := strings.NewReplacer("[", "(", "]", ")", "\n", " ").Replace(inj.Caption)
	if alt == "" {
		alt = fmt.Sprintf("Task %d", inj.TaskIndex)
	}
	return fmt.Sprintf("![%s](%s)", alt, strings.ReplaceAll(inj.Image, " ", "%20"))
}
