package script

import (
	"fmt"
	"strings"
)

// TCL renders scripts for the Active-HDL/Riviera TCL shell.
type TCL struct {
	Indent string // per nesting level; defaults to four spaces
}

// Render implements Dialect.
func (t TCL) Render(s Script) string {
	var b strings.Builder
	t.block(&b, s.Statements, 0)
	return b.String()
}

func (t TCL) indent() string {
	if t.Indent == "" {
		return "    "
	}
	return t.Indent
}

func (t TCL) block(b *strings.Builder, stmts []Statement, depth int) {
	for _, st := range stmts {
		t.statement(b, st, depth)
	}
}

func (t TCL) line(b *strings.Builder, depth int, text string) {
	if text != "" {
		b.WriteString(strings.Repeat(t.indent(), depth))
		b.WriteString(text)
	}
	b.WriteByte('\n')
}

// nested writes `head {`, body, and the closing `tail`.
func (t TCL) nested(b *strings.Builder, depth int, head string, body []Statement, tail string) {
	t.line(b, depth, head+" {")
	t.block(b, body, depth+1)
	t.line(b, depth, tail)
}

func (t TCL) statement(b *strings.Builder, st Statement, depth int) {
	switch s := st.(type) {
	case Comment:
		t.line(b, depth, "# "+s.Text)
	case Blank:
		t.line(b, depth, "")
	case Command:
		t.line(b, depth, t.command(s))
	case Set:
		t.line(b, depth, fmt.Sprintf("set %s %s", s.Name, t.word(s.Value)))
	case SetResult:
		t.line(b, depth, fmt.Sprintf("set %s [%s]", s.Name, t.command(s.Command)))
	case Global:
		t.line(b, depth, "global "+s.Name)
	case Return:
		t.line(b, depth, strings.TrimSpace("return "+s.Value))
	case Source:
		t.line(b, depth, `source "`+FixPath(s.Path)+`"`)
	case If:
		if len(s.Then) == 1 {
			if c, ok := s.Then[0].(Command); ok {
				t.line(b, depth, fmt.Sprintf("if {%s} {%s}", s.Cond, t.command(c)))
				return
			}
		}
		t.nested(b, depth, fmt.Sprintf("if {%s}", s.Cond), s.Then, "}")
	case Foreach:
		t.nested(b, depth, fmt.Sprintf("foreach %s %s", s.Var, s.List), s.Body, "}")
	case Catch:
		if s.ResultVar == "" {
			t.nested(b, depth, "catch", s.Body, "}")
			return
		}
		t.nested(b, depth, fmt.Sprintf("set %s [catch", s.ResultVar), s.Body, "}]")
	case Proc:
		t.nested(b, depth, fmt.Sprintf("proc %s {}", s.Name), s.Body, "}")
	default:
		panic(fmt.Sprintf("script: unhandled statement %T", st))
	}
}

func (t TCL) command(c Command) string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, w := range c.Args {
		if w.Kind == WordBare && w.Text == "" {
			continue
		}
		parts = append(parts, t.word(w))
	}
	return strings.Join(parts, " ")
}

func (t TCL) word(w Word) string {
	switch w.Kind {
	case WordBraced:
		return "{" + w.Text + "}"
	case WordQuoted:
		return `"` + w.Text + `"`
	}
	return w.Text
}
