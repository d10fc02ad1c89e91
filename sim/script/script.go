// Package script models simulator control scripts as ordered statement lists.
//
// Generators build a Script from statements; a Dialect serializes it. Keeping
// the two apart lets the load/run logic be checked structurally in tests while
// the text format lives in one place.
package script

import "strings"

// WordKind selects how a command word is quoted.
type WordKind int

const (
	WordBare   WordKind = iota // emitted as is
	WordBraced                 // {text}, no substitution
	WordQuoted                 // "text", substitution allowed
)

// Word is one argument of a command.
type Word struct {
	Kind WordKind
	Text string
}

// Bare returns an unquoted word.
func Bare(s string) Word { return Word{Kind: WordBare, Text: s} }

// Braced returns a brace-quoted word.
func Braced(s string) Word { return Word{Kind: WordBraced, Text: s} }

// Quoted returns a double-quoted word.
func Quoted(s string) Word { return Word{Kind: WordQuoted, Text: s} }

// Bares converts each string into a bare word.
func Bares(ss ...string) []Word {
	words := make([]Word, len(ss))
	for i, s := range ss {
		words[i] = Bare(s)
	}
	return words
}

// Statement is implemented by every node of the script model.
type Statement interface {
	statement()
}

// Comment is a full-line comment.
type Comment struct{ Text string }

// Blank is an empty line.
type Blank struct{}

// Command invokes Name with Args.
type Command struct {
	Name string
	Args []Word
}

// Cmd builds a Command.
func Cmd(name string, args ...Word) Command { return Command{Name: name, Args: args} }

// Set assigns a literal value to a variable.
type Set struct {
	Name  string
	Value Word
}

// SetResult assigns the result of a command to a variable.
type SetResult struct {
	Name    string
	Command Command
}

// Global imports a global variable into the enclosing proc.
type Global struct{ Name string }

// Return leaves the enclosing proc with Value.
type Return struct{ Value string }

// Source evaluates another script file.
type Source struct{ Path string }

// If runs Then when Cond holds.
type If struct {
	Cond string
	Then []Statement
}

// Foreach runs Body once per element of List bound to Var.
type Foreach struct {
	Var  string
	List string
	Body []Statement
}

// Catch runs Body, trapping errors. When ResultVar is set the catch status is
// stored there (nonzero on error).
type Catch struct {
	ResultVar string
	Body      []Statement
}

// Proc defines a procedure without arguments.
type Proc struct {
	Name string
	Body []Statement
}

func (Comment) statement()   {}
func (Blank) statement()     {}
func (Command) statement()   {}
func (Set) statement()       {}
func (SetResult) statement() {}
func (Global) statement()    {}
func (Return) statement()    {}
func (Source) statement()    {}
func (If) statement()        {}
func (Foreach) statement()   {}
func (Catch) statement()     {}
func (Proc) statement()      {}

// Script is an ordered list of top-level statements.
type Script struct {
	Statements []Statement
}

// Add appends statements.
func (s *Script) Add(stmts ...Statement) {
	s.Statements = append(s.Statements, stmts...)
}

// Proc returns the first top-level proc named name.
func (s Script) Proc(name string) (Proc, bool) {
	for _, st := range s.Statements {
		if p, ok := st.(Proc); ok && p.Name == name {
			return p, true
		}
	}
	return Proc{}, false
}

// Dialect serializes a Script into a simulator control language.
type Dialect interface {
	Render(s Script) string
}

// FixPath converts a filesystem path for use inside a script: backslashes
// become forward slashes and spaces are escaped.
func FixPath(path string) string {
	return strings.ReplaceAll(strings.ReplaceAll(path, `\`, "/"), " ", `\ `)
}
