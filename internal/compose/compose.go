// Package compose merges task screenshots into the original document flow
package compose

import (
	"fmt"
	"sort"

	"github.com/labmate/labmate/internal/extract"
	"github.com/labmate/labmate/internal/parser"
	"github.com/labmate/labmate/internal/types"
)

// Placement is one screenshot to inject for a task
type Placement struct {
	// ID is recorded in the screenshot order
	ID        string
	TaskIndex int
	Insertion types.InsertionPoint
	// Image is the reference written into the report
	Image   string
	Caption string
}

// Injection is a placement resolved to a line of the document. The injected
// block goes before line At; At == len(Lines) appends at the end.
type Injection struct {
	Placement
	At int
}

// Composition is the resolved, ordered set of injections
type Composition struct {
	Injections []Injection
	// Order lists placement IDs in the order they were injected
	Order []string
}

// Compose resolves every placement against the document structure. Ties at
// the same point are ordered by ascending task index, then ID. Any
// placement whose target cannot be resolved fails the whole composition.
func Compose(doc *parser.Document, tasks []extract.Task, placements []Placement) (*Composition, error) {
	byIndex := make(map[int]extract.Task, len(tasks))
	for _, t := range tasks {
		byIndex[t.Index] = t
	}

	injections := make([]Injection, 0, len(placements))
	for _, p := range placements {
		task, ok := byIndex[p.TaskIndex]
		if !ok {
			return nil, compositionError(fmt.Errorf("%w: task %d is not in the document", types.ErrInsertionTarget, p.TaskIndex))
		}
		at, err := insertionLine(doc, task, p.Insertion)
		if err != nil {
			return nil, compositionError(err)
		}
		injections = append(injections, Injection{Placement: p, At: at})
	}

	sort.SliceStable(injections, func(i, j int) bool {
		a, b := injections[i], injections[j]
		if a.At != b.At {
			return a.At < b.At
		}
		if a.TaskIndex != b.TaskIndex {
			return a.TaskIndex < b.TaskIndex
		}
		return a.ID < b.ID
	})

	order := make([]string, len(injections))
	for i, inj := range injections {
		order[i] = inj.ID
	}
	return &Composition{Injections: injections, Order: order}, nil
}

func insertionLine(doc *parser.Document, task extract.Task, point types.InsertionPoint) (int, error) {
	switch point {
	case types.InsertBelowQuestion:
		return task.QuestionEnd, nil
	case types.InsertBottomOfPage:
		last := task.End - 1
		if last < task.Start {
			last = task.Start
		}
		page, ok := doc.PageOf(last)
		if !ok {
			return 0, fmt.Errorf("%w: no page boundary for task %d", types.ErrInsertionTarget, task.Index)
		}
		end, ok := doc.PageEnd(page)
		if !ok {
			return 0, fmt.Errorf("%w: page %d of task %d has no end", types.ErrInsertionTarget, page+1, task.Index)
		}
		return end, nil
	default:
		return 0, fmt.Errorf("%w: unknown insertion point %q for task %d", types.ErrInsertionTarget, point, task.Index)
	}
}

func compositionError(err error) error {
	return types.NewError(types.KindComposition, "compose report", err)
}
