// ABOUTME: Safety checker for agent-generated code — pattern scans for shell,
// ABOUTME: file system, and network access, gated by a configurable mode.

package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode sets how aggressively generated code is flagged.
type Mode string

const (
	// ModeStrict blocks anything that raises a warning.
	ModeStrict Mode = "strict"
	// ModeBalanced blocks shell and network access, allows file access.
	ModeBalanced Mode = "balanced"
	// ModePermissive blocks only direct code execution primitives.
	ModePermissive Mode = "permissive"
)

// ParseMode validates a mode string from config.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeBalanced, ModePermissive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown safety mode %q (want strict, balanced, or permissive)", s)
}

// Result is the outcome of one code scan. Warnings are advisory even when
// Safe is true, so callers can still surface them.
type Result struct {
	Safe     bool
	Warnings []string
}

type pattern struct {
	re   *regexp.Regexp
	desc string
}

var shellPatterns = []pattern{
	{regexp.MustCompile(`os\.system\s*\(`), "shell command execution via os.system"},
	{regexp.MustCompile(`subprocess\.(run|call|check_output|Popen)`), "subprocess invocation"},
	{regexp.MustCompile(`(?m)^\s*!\s*[a-zA-Z]`), "notebook shell escape"},
}

var execPatterns = []pattern{
	{regexp.MustCompile(`\bexec\s*\(`), "dynamic code execution via exec"},
	{regexp.MustCompile(`\beval\s*\(`), "dynamic code execution via eval"},
	{regexp.MustCompile(`\bcompile\s*\(`), "dynamic code compilation"},
	{regexp.MustCompile(`__import__\s*\(`), "dynamic import via __import__"},
}

var filePatterns = []pattern{
	{regexp.MustCompile(`\bopen\s*\(`), "file open"},
	{regexp.MustCompile(`\.write\s*\(`), "file write"},
	{regexp.MustCompile(`\.read\s*\(`), "file read"},
	{regexp.MustCompile(`os\.(remove|unlink|rmdir|makedirs|mkdir)\s*\(`), "file system mutation"},
	{regexp.MustCompile(`shutil\.`), "shutil file operation"},
}

var networkPatterns = []pattern{
	{regexp.MustCompile(`requests\.`), "network access via requests"},
	{regexp.MustCompile(`urllib\.`), "network access via urllib"},
	{regexp.MustCompile(`\bsocket\.`), "raw socket access"},
	{regexp.MustCompile(`urlopen\s*\(`), "network access via urlopen"},
	{regexp.MustCompile(`\bhttp\.client\b`), "network access via http.client"},
}

var dangerousImports = regexp.MustCompile(
	`(?m)^\s*(?:import|from)\s+(os|subprocess|sys|shutil|socket|urllib|requests|ftplib|smtplib|telnetlib|webbrowser)\b`)

// Checker scans code suggestions before they touch the document.
type Checker struct {
	mode Mode
}

// NewChecker creates a checker for the given mode.
func NewChecker(mode Mode) *Checker {
	return &Checker{mode: mode}
}

// Mode returns the checker's configured mode.
func (c *Checker) Mode() Mode {
	return c.mode
}

// Check scans one code snippet. The verdict depends on the mode: strict
// fails on any warning, balanced tolerates file access but not shell or
// network use, permissive fails only on execution primitives and shell use.
func (c *Checker) Check(code string) Result {
	var warnings []string

	scan := func(ps []pattern) {
		for _, p := range ps {
			if p.re.MatchString(code) {
				warnings = append(warnings, p.desc)
			}
		}
	}

	scan(shellPatterns)
	scan(execPatterns)
	if c.mode == ModeStrict {
		scan(filePatterns)
	}
	if c.mode == ModeStrict || c.mode == ModeBalanced {
		scan(networkPatterns)
	}
	for _, m := range dangerousImports.FindAllStringSubmatch(code, -1) {
		warnings = append(warnings, "potentially dangerous import: "+m[1])
	}

	return Result{Safe: c.verdict(warnings), Warnings: warnings}
}

func (c *Checker) verdict(warnings []string) bool {
	if len(warnings) == 0 {
		return true
	}
	switch c.mode {
	case ModePermissive:
		for _, w := range warnings {
			lw := strings.ToLower(w)
			for _, kw := range []string{"exec", "eval", "__import__", "shell"} {
				if strings.Contains(lw, kw) {
					return false
				}
			}
		}
		return true
	case ModeBalanced:
		return false
	default: // strict
		return false
	}
}

// PromptAddition returns the guidance appended to the agent's system prompt
// for this mode.
func (c *Checker) PromptAddition() string {
	switch c.mode {
	case ModeStrict:
		return "\n\nIMPORTANT SAFETY GUIDELINES:\n" +
			"- Do not generate code that accesses the file system\n" +
			"- Do not generate code that makes network requests\n" +
			"- Do not generate code that executes shell commands\n" +
			"- Focus on data analysis and visualization only\n" +
			"- Use only safe, read-only operations"
	case ModeBalanced:
		return "\n\nSAFETY GUIDELINES:\n" +
			"- Avoid shell command execution unless specifically requested\n" +
			"- Be cautious with file system operations\n" +
			"- Prefer safe data manipulation and analysis operations\n" +
			"- Ask for confirmation before risky operations"
	default:
		return "\n\nGENERAL SAFETY:\n" +
			"- Be thoughtful about potentially destructive operations\n" +
			"- Consider the security implications of generated code"
	}
}
