package compile

import (
	"bytes"
	"fmt"
	"regexp"
)

var (
	// sectionHeaderRe matches a line that starts a new class section,
	// e.g. "# class com.example.Helper".
	sectionHeaderRe = regexp.MustCompile(`^#\s*class\s+(\S+)\s*$`)
	classNameRe     = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)
)

// ValidClassName reports whether name is a well-formed fully-qualified name.
func ValidClassName(name string) bool {
	return classNameRe.MatchString(name)
}

// section is the part of a source file that defines one class.
type section struct {
	name string
	// headerLine is the 1-based line of the "# class" header, zero for the
	// implicit section of the requested class.
	headerLine int
	// firstLine is the 1-based line at which content begins.
	firstLine int
	content   []byte
}

func (s *section) blank() bool {
	return len(bytes.TrimSpace(s.content)) == 0
}

// splitSections cuts src into class sections.  Text before the first header
// belongs to the requested class; a blank implicit section is dropped when
// the source declares explicit sections.
func splitSections(requested string, src []byte) (sections []*section, diagnostics []*Diagnostic) {
	current := &section{name: requested, firstLine: 1}
	start := 0
	line := 1
	headers := 0

	for offset := 0; offset <= len(src); {
		end := bytes.IndexByte(src[offset:], '\n')
		var text []byte
		next := len(src) + 1
		if end < 0 {
			text = src[offset:]
		} else {
			text = src[offset : offset+end]
			next = offset + end + 1
		}
		if match := sectionHeaderRe.FindSubmatch(bytes.TrimRight(text, "\r")); match != nil {
			current.content = src[start:offset]
			sections = append(sections, current)
			headers++
			current = &section{
				name:       string(match[1]),
				headerLine: line,
				firstLine:  line + 1,
			}
			start = next
			if start > len(src) {
				start = len(src)
			}
		}
		offset = next
		line++
	}
	current.content = src[start:]
	sections = append(sections, current)

	if headers > 0 && sections[0].blank() {
		sections = sections[1:]
	}

	seen := make(map[string]*section, len(sections))
	kept := sections[:0]
	for _, s := range sections {
		if !ValidClassName(s.name) {
			diagnostics = append(diagnostics, &Diagnostic{
				Severity: SeverityError,
				Line:     s.headerLine,
				Message:  fmt.Sprintf("invalid class name %q", s.name),
			})
			continue
		}
		if prev, ok := seen[s.name]; ok {
			diagnostics = append(diagnostics, &Diagnostic{
				Severity: SeverityError,
				Line:     s.headerLine,
				Message:  fmt.Sprintf("duplicate class %s (first defined at line %d)", s.name, prev.firstLine),
			})
			continue
		}
		seen[s.name] = s
		if s.blank() {
			diagnostics = append(diagnostics, &Diagnostic{
				Severity: SeverityWarning,
				Line:     s.firstLine,
				Message:  fmt.Sprintf("class %s has an empty body", s.name),
			})
		}
		kept = append(kept, s)
	}

	return kept, diagnostics
}
