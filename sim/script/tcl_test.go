package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTCL_RendersNestedProc(t *testing.T) {
	// GIVEN a proc with a catch, an if and globals
	var s Script
	s.Add(Proc{Name: "load", Body: []Statement{
		Set{Name: "g_WIDTH", Value: Braced("8")},
		Catch{ResultVar: "failed", Body: []Statement{
			Cmd("vsim", Bare("-lib"), Bare("lib"), Bare(""), Bare("tb")),
		}},
		If{Cond: "${failed}", Then: []Statement{Return{Value: "true"}}},
		Blank{},
		Global{Name: "level"},
		Set{Name: "level", Value: Bare("2")},
		Return{Value: "false"},
	}})

	// WHEN rendered as TCL
	got := TCL{}.Render(s)

	// THEN blocks nest with four-space indentation and empty bare words vanish
	want := `proc load {} {
    set g_WIDTH {8}
    set failed [catch {
        vsim -lib lib tb
    }]
    if {${failed}} {
        return true
    }

    global level
    set level 2
    return false
}
`
	assert.Equal(t, want, got)
}

func TestTCL_InlineIfAndSource(t *testing.T) {
	var s Script
	s.Add(
		Source{Path: `C:\out dir\common.tcl`},
		SetResult{Name: "failed", Command: Cmd("load")},
		If{Cond: "$failed", Then: []Statement{Cmd("quit", Bares("-code", "1")...)}},
		Cmd("puts", Quoted("hello")),
	)

	got := TCL{}.Render(s)

	assert.Equal(t, `source "C:/out\ dir/common.tcl"
set failed [load]
if {$failed} {quit -code 1}
puts "hello"
`, got)
}

func TestTCL_ForeachAndPlainCatch(t *testing.T) {
	var s Script
	s.Add(
		Foreach{Var: "line", List: "$lines", Body: []Statement{Comment{Text: "x"}}},
		Catch{Body: []Statement{Cmd("bt")}},
	)

	got := TCL{Indent: "  "}.Render(s)

	assert.Equal(t, "foreach line $lines {\n  # x\n}\ncatch {\n  bt\n}\n", got)
}

func TestScript_ProcLookup(t *testing.T) {
	var s Script
	s.Add(Proc{Name: "a"}, Blank{}, Proc{Name: "b"})

	p, ok := s.Proc("b")
	assert.True(t, ok)
	assert.Equal(t, "b", p.Name)
	_, ok = s.Proc("c")
	assert.False(t, ok)
}

func TestFixPath(t *testing.T) {
	assert.Equal(t, "C:/a/b", FixPath(`C:\a\b`))
	assert.Equal(t, `/tmp/my\ dir`, FixPath("/tmp/my dir"))
}
