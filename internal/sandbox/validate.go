package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/labmate/labmate/internal/types"
)

// ErrRejected is wrapped by every policy violation
var ErrRejected = errors.New("program rejected")

// Rule rejects programs matching Pattern
type Rule struct {
	Pattern *regexp.Regexp
	Reason  string
}

// Policy is the static check a program must pass before it is started
type Policy struct {
	MaxLength  int
	Imports    map[string]bool
	Calls      map[string]bool
	Attributes map[string]bool
	Rules      []Rule
}

var (
	// import statements open a line or follow ";" or a compound header's ":"
	importRe     = regexp.MustCompile(`(?:^|[;:])\s*import\s+([^;#]+)`)
	fromImportRe = regexp.MustCompile(`(?:^|[;:])\s*from\s+([\w.]+)\s+import\s+([^;#]+)`)
	callRe       = regexp.MustCompile(`(?:^|[^\w.])([A-Za-z_]\w*)\s*\(`)
	attrRe       = regexp.MustCompile(`\.\s*(__\w+__)`)
)

// DefaultPolicy blocks process, file, network and introspection access
func DefaultPolicy(maxLength int) *Policy {
	return &Policy{
		MaxLength: maxLength,
		Imports: set(
			"os", "subprocess", "sys", "socket", "pathlib", "shutil",
			"eval", "exec", "compile", "__import__", "glob", "tempfile",
			"urllib", "requests", "http", "ftplib", "smtplib",
			"pickle", "marshal", "ctypes", "multiprocessing",
			"importlib", "builtins",
		),
		Calls: set(
			"open", "file", "input", "raw_input", "exit", "quit",
			"help", "dir", "vars", "locals", "globals",
			"eval", "exec", "compile", "__import__",
		),
		Attributes: set(
			"__import__", "__globals__", "__locals__", "__code__",
			"__func__", "__self__", "__class__", "__bases__",
			"__subclasses__", "__mro__", "__dict__",
		),
		Rules: []Rule{
			{regexp.MustCompile(`(?i)\.(write|writelines|read)\s*\(`), "file operations are not allowed"},
			{regexp.MustCompile(`(?i)os\.system|subprocess\.|\.popen|\.check_output`), "system command execution is not allowed"},
			{regexp.MustCompile(`(?i)urllib|requests\.|socket\.|ftplib|smtplib`), "network operations are not allowed"},
		},
	}
}

// Check returns a validation error when code must not be run
func (p *Policy) Check(code string) error {
	if strings.TrimSpace(code) == "" {
		return types.NewError(types.KindValidation, "validate program", types.ErrNoCode)
	}
	if p.MaxLength > 0 && len(code) > p.MaxLength {
		return reject("code too long: %d characters, maximum %d", len(code), p.MaxLength)
	}

	for _, line := range strings.Split(code, "\n") {
		if err := p.checkLine(line); err != nil {
			return err
		}
	}
	for _, rule := range p.Rules {
		if rule.Pattern.MatchString(code) {
			return reject("%s", rule.Reason)
		}
	}
	return nil
}

func (p *Policy) checkLine(line string) error {
	for _, m := range importRe.FindAllStringSubmatch(line, -1) {
		for _, name := range strings.Split(m[1], ",") {
			if p.blockedModule(name) {
				return reject("import blocked: %s", strings.TrimSpace(name))
			}
		}
	}
	for _, m := range fromImportRe.FindAllStringSubmatch(line, -1) {
		if p.blockedModule(m[1]) {
			return reject("import blocked: %s", m[1])
		}
		for _, name := range strings.Split(strings.Trim(m[2], "() "), ",") {
			if p.blockedModule(name) {
				return reject("import blocked: %s", strings.TrimSpace(name))
			}
		}
	}
	for _, m := range callRe.FindAllStringSubmatch(line, -1) {
		if p.Calls[m[1]] {
			return reject("call blocked: %s", m[1])
		}
	}
	for _, m := range attrRe.FindAllStringSubmatch(line, -1) {
		if p.Attributes[m[1]] {
			return reject("attribute access blocked: %s", m[1])
		}
	}
	return nil
}

// blockedModule matches "pkg", "pkg.sub" and "pkg as alias" on the root name
func (p *Policy) blockedModule(name string) bool {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return false
	}
	root := strings.SplitN(fields[0], ".", 2)[0]
	return p.Imports[root]
}

func reject(format string, args ...interface{}) error {
	return types.NewError(types.KindValidation, "validate program",
		fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...)))
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
