package extract

import (
	"regexp"
	"strings"
)

// CodeDetector decides whether a line of prose-or-code is program text
type CodeDetector func(line string) bool

var (
	codeKeyword = regexp.MustCompile(`^\s*(?:def|class|import|from|for|while|with|return|yield|lambda|async|await|try|except|finally|elif|else|raise|assert|global|nonlocal|pass|break|continue)\b`)
	codeIfMain  = regexp.MustCompile(`^\s*if\s+__name__`)
	codeCall    = regexp.MustCompile(`^\s*[a-z_][a-zA-Z0-9_.]*\s*\(`)
	codeAssign  = regexp.MustCompile(`^\s*[a-zA-Z_][\w.\[\]]*(?:\s*,\s*[a-zA-Z_][\w.\[\]]*)*\s*(?:[-+*/%]|//|\*\*)?=[^=]`)
	codeComment = regexp.MustCompile(`^\s*#`)
	codeBlock   = regexp.MustCompile(`^\s*(?:if|elif|else|for|while|try|except|with|def|class)\b.*:\s*$`)
)

// LooksLikeCode is the default code-region heuristic: indented lines,
// statements that open with a Python keyword, calls, assignments and
// comments. Prose rarely starts lowercase with one of these shapes.
func LooksLikeCode(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
		return true
	}
	if strings.Contains(line, "print(") {
		return true
	}
	for _, re := range []*regexp.Regexp{codeKeyword, codeIfMain, codeCall, codeAssign, codeComment, codeBlock} {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

var screenshotKeywords = []string{
	"screenshot",
	"output",
	"run this code",
	"execute",
	"show output",
	"capture",
	"display result",
	"print result",
}

// MentionsScreenshot reports whether text asks for proof of execution
func MentionsScreenshot(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range screenshotKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
