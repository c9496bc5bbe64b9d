package compile

import (
	"fmt"
	"strings"
)

// Report renders the failure for a human reader: every diagnostic followed by
// the offending source line and a caret under the reported column.
func (d *Details) Report() string {
	lines := strings.Split(d.Source, "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "failed to compile class %s\n", d.ClassName)
	for _, diag := range d.Diagnostics {
		b.WriteString(diag.String())
		b.WriteByte('\n')
		if diag.Line < 1 || diag.Line > len(lines) {
			continue
		}
		text := strings.TrimRight(lines[diag.Line-1], "\r")
		prefix := fmt.Sprintf("%5d | ", diag.Line)
		b.WriteString(prefix)
		b.WriteString(text)
		b.WriteByte('\n')
		if diag.Col > 0 {
			b.WriteString(strings.Repeat(" ", len(prefix)))
			b.WriteString(caretIndent(text, diag.Col))
			b.WriteString("^\n")
		}
	}
	if d.Stderr != "" {
		lines := strings.Split(strings.TrimRight(d.Stderr, "\n"), "\n")
		// the summary lines follow the per-diagnostic lines
		if n := len(d.Diagnostics); n < len(lines) {
			for _, line := range lines[n:] {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// caretIndent returns whitespace reaching the 1-based rune column col of
// text, keeping tabs so the caret lines up in a terminal.
func caretIndent(text string, col int) string {
	var b strings.Builder
	i := 1
	for _, r := range text {
		if i >= col {
			break
		}
		if r == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
		i++
	}
	for ; i < col; i++ {
		b.WriteByte(' ')
	}
	return b.String()
}
