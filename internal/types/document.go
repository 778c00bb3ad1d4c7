package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Theme is the visual style of the execution environment used for screenshots
type Theme string

// Themes
const (
	// ThemePlain renders a plain read-eval console
	ThemePlain Theme = "plain"
	// ThemeEditor renders an editor window with line numbers above the console
	ThemeEditor Theme = "editor"
)

// ParseTheme converts a string to a Theme. The legacy names "idle" and
// "vscode" are accepted as plain and editor.
func ParseTheme(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ThemePlain), "idle", "console":
		return ThemePlain, nil
	case string(ThemeEditor), "vscode", "notepad", "codeblocks":
		return ThemeEditor, nil
	default:
		return "", fmt.Errorf("invalid theme: %q", s)
	}
}

// ThemeForLanguage maps a programming language to the environment it is usually shown in
func ThemeForLanguage(language string) Theme {
	switch strings.ToLower(language) {
	case "", "python":
		return ThemePlain
	default:
		return ThemeEditor
	}
}

// InsertionPoint is the policy governing where a screenshot is injected
type InsertionPoint string

// Insertion points
const (
	// InsertBelowQuestion inserts right after the task's question text block
	InsertBelowQuestion InsertionPoint = "below_question"
	// InsertBottomOfPage defers insertion to the end of the last page containing the task
	InsertBottomOfPage InsertionPoint = "bottom_of_page"
)

// ParseInsertionPoint converts a string to an InsertionPoint
func ParseInsertionPoint(s string) (InsertionPoint, error) {
	switch InsertionPoint(s) {
	case InsertBelowQuestion, InsertBottomOfPage:
		return InsertionPoint(s), nil
	default:
		return "", fmt.Errorf("invalid insertion point: %q", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler for InsertionPoint
func (p *InsertionPoint) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == "" {
		*p = ""
		return nil
	}
	v, err := ParseInsertionPoint(str)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// TaskType is the kind of work an AI task asks for
type TaskType string

// Task types
const (
	TaskTypeScreenshotRequest TaskType = "screenshot_request"
	TaskTypeAnswerRequest     TaskType = "answer_request"
	TaskTypeCodeExecution     TaskType = "code_execution"
)

// ParseTaskType converts a string to a TaskType
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskTypeScreenshotRequest, TaskTypeAnswerRequest, TaskTypeCodeExecution:
		return TaskType(s), nil
	default:
		return "", fmt.Errorf("invalid task type: %q", s)
	}
}

// ExecutesCode reports whether tasks of this type run code in the sandbox
func (t TaskType) ExecutesCode() bool {
	return t == TaskTypeScreenshotRequest || t == TaskTypeCodeExecution
}

// FileType is the kind of uploaded document
type FileType string

// File types
const (
	FileTypeDocx FileType = "docx"
	FileTypePDF  FileType = "pdf"
	FileTypeText FileType = "text"
)

// FileTypeFromName infers the file type from a filename extension
func FileTypeFromName(name string) (FileType, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".docx"):
		return FileTypeDocx, nil
	case strings.HasSuffix(lower, ".pdf"):
		return FileTypePDF, nil
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".md"):
		return FileTypeText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
}
