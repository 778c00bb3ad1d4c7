package extract

import (
	"strings"

	"github.com/labmate/labmate/internal/parser"
)

// Task is one extracted question with its code
type Task struct {
	// Index is the canonical 1-based position of the task in the document
	Index int `json:"index"`
	// RawNumber is the number printed in the document
	RawNumber int `json:"raw_number"`
	// Section is the letter of the enclosing section heading, if any
	Section            string `json:"section,omitempty"`
	Question           string `json:"question"`
	Code               string `json:"code,omitempty"`
	RequiresScreenshot bool   `json:"requires_screenshot"`
	// Start is the boundary line of the task
	Start int `json:"start"`
	// QuestionEnd is the exclusive end line of the question text block
	QuestionEnd int `json:"question_end"`
	// End is the exclusive end line of the task
	End int `json:"end"`
}

// Result is the outcome of an extraction
type Result struct {
	Tasks []Task `json:"tasks"`
	// NonSequential is set when the printed numbers were not 1, 2, 3, ...
	// and the tasks were relabelled
	NonSequential bool `json:"non_sequential"`
}

// Extractor partitions a document into tasks
type Extractor struct {
	// IsCode is the code-region heuristic applied outside format-supplied code spans
	IsCode CodeDetector
}

// New returns an Extractor using LooksLikeCode
func New() *Extractor {
	return &Extractor{IsCode: LooksLikeCode}
}

// Extract runs the default extractor over doc
func Extract(doc *parser.Document) Result {
	return New().Extract(doc)
}

// openTask accumulates the lines of the task currently being read
type openTask struct {
	task     Task
	question []string
	code     []string
	inCode   bool
}

// Extract scans doc line by line. A task boundary closes the open task and
// opens the next one; following lines are question text until the first
// code line, after which code lines form the snippet. Lines before the first
// boundary belong to no task. A document without task boundaries becomes a
// single task 1 spanning the whole text.
func (e *Extractor) Extract(doc *parser.Document) Result {
	var (
		res     Result
		cur     *openTask
		section string
		last    int
	)

	closeTask := func(end int) {
		if cur == nil {
			return
		}
		res.Tasks = append(res.Tasks, cur.finish(end))
		cur = nil
	}

	for i := range doc.Lines {
		text := doc.Text(i)
		if b, ok := Classify(text); ok && boundaryAllowed(doc, i, b) {
			closeTask(i)
			if !b.IsTask() {
				section = b.Section
				continue
			}
			if b.Number != last+1 {
				res.NonSequential = true
			}
			last = b.Number
			cur = &openTask{task: Task{
				RawNumber: b.Number,
				Section:   section,
				Start:     i,
			}}
			cur.addQuestion(i, text)
			continue
		}
		if cur != nil {
			cur.add(i, text, doc.InCode(i) || e.isCode(text))
		}
	}
	closeTask(len(doc.Lines))

	if len(res.Tasks) == 0 {
		return e.single(doc)
	}
	for i := range res.Tasks {
		res.Tasks[i].Index = i + 1
	}
	return res
}

// boundaryAllowed reports whether b on line i may open a task or section.
// Fenced blocks hide every boundary. Other format code spans come from
// fonts and styles, so a task heading set in them still counts.
func boundaryAllowed(doc *parser.Document, i int, b Boundary) bool {
	span, ok := doc.CodeSpanAt(i)
	if !ok {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(doc.Text(span.Start)), "```") {
		return false
	}
	return b.IsTask()
}

// single builds the one task of a document without task boundaries
func (e *Extractor) single(doc *parser.Document) Result {
	cur := &openTask{task: Task{RawNumber: 1}}
	for i := range doc.Lines {
		text := doc.Text(i)
		cur.add(i, text, doc.InCode(i) || e.isCode(text))
	}
	task := cur.finish(len(doc.Lines))
	task.Index = 1
	return Result{Tasks: []Task{task}}
}

func (e *Extractor) isCode(line string) bool {
	if e.IsCode == nil {
		return LooksLikeCode(line)
	}
	return e.IsCode(line)
}

func (o *openTask) addQuestion(i int, text string) {
	if MentionsScreenshot(text) {
		o.task.RequiresScreenshot = true
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	o.question = append(o.question, strings.TrimSpace(text))
	o.task.QuestionEnd = i + 1
}

func (o *openTask) add(i int, text string, code bool) {
	switch {
	case code:
		o.inCode = true
		if !strings.HasPrefix(strings.TrimSpace(text), "```") {
			o.code = append(o.code, text)
		}
	case o.inCode:
		// prose after the snippet is neither question nor code
		if MentionsScreenshot(text) {
			o.task.RequiresScreenshot = true
		}
	default:
		o.addQuestion(i, text)
	}
}

func (o *openTask) finish(end int) Task {
	t := o.task
	t.Question = strings.Join(o.question, "\n")
	t.Code = strings.TrimRight(strings.Join(o.code, "\n"), "\n")
	t.End = end
	if t.QuestionEnd < t.Start {
		t.QuestionEnd = t.Start
	}
	return t
}
