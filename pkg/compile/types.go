package compile

import (
	"fmt"
	"sort"
	"strings"
)

// SourceFileSuffix is the extension of scratch source files.
const SourceFileSuffix = ".star"

// Unit is a single request to compile a named class from source text.
type Unit struct {
	// Name is the fully-qualified class name, e.g. "com.example.Foo".
	Name string
	// Source is the program text.
	Source string
}

// SimpleName returns the last dotted segment of the class name.
func (u *Unit) SimpleName() string {
	return SimpleName(u.Name)
}

// PackagePath returns the package of the class as a slash-separated path.
func (u *Unit) PackagePath() string {
	i := strings.LastIndexByte(u.Name, '.')
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(u.Name[:i], ".", "/")
}

// SourcePath returns the relative path the source file must have for the
// name of the class to match its location.
func (u *Unit) SourcePath() string {
	return ClassPath(u.Name) + SourceFileSuffix
}

// SimpleName returns the last dotted segment of a fully-qualified name.
func SimpleName(name string) string {
	return name[strings.LastIndexByte(name, '.')+1:]
}

// PackageName returns everything before the last dotted segment of a
// fully-qualified name, or the empty string for the default package.
func PackageName(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// ClassPath converts a fully-qualified name to a relative slash path without
// extension ("com.example.Foo" -> "com/example/Foo").
func ClassPath(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// Artifacts maps a class name to its compiled program bytes.
type Artifacts map[string][]byte

// Names returns the class names in sorted order.
func (a Artifacts) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Severity is the level of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityNote:
		return "NOTE"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ERROR":
		*s = SeverityError
	case "WARNING":
		*s = SeverityWarning
	case "NOTE":
		*s = SeverityNote
	default:
		return fmt.Errorf("unknown severity: %q", text)
	}
	return nil
}

// Diagnostic is a single message reported by the compiler.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Source   string   `json:"source,omitempty"`
	Line     int      `json:"line,omitempty"`
	Col      int      `json:"col,omitempty"`
	Message  string   `json:"message"`
}

// String formats the diagnostic the way a command-line compiler prints it.
func (d *Diagnostic) String() string {
	var b strings.Builder
	if d.Source != "" {
		b.WriteString(d.Source)
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d", d.Line)
			if d.Col > 0 {
				fmt.Fprintf(&b, ":%d", d.Col)
			}
		}
		b.WriteString(": ")
	}
	b.WriteString(strings.ToLower(d.Severity.String()))
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Details describes a failed compilation.
type Details struct {
	ClassName   string        `json:"className"`
	Source      string        `json:"source"`
	Diagnostics []*Diagnostic `json:"diagnostics,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
}

// Errors returns the number of error diagnostics.
func (d *Details) Errors() int {
	return d.count(SeverityError)
}

// Warnings returns the number of warning diagnostics.
func (d *Details) Warnings() int {
	return d.count(SeverityWarning)
}

func (d *Details) count(severity Severity) (n int) {
	for _, diag := range d.Diagnostics {
		if diag.Severity == severity {
			n++
		}
	}
	return
}
