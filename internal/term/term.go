// Package term implements the tagged Term value tree produced by parsing
// the symbolic reply syntax spoken by the generator and solver processes.
package term

import (
	"fmt"
	"strconv"
	"strings"
)

// Term is the sum type over Number, Variable, Atom, Compound and List.
// Values are immutable after construction.
type Term interface {
	isTerm()
	String() string
}

// Number holds either an integer or a floating-point value. IsFloat
// discriminates which field is live.
type Number struct {
	IsFloat bool
	Int     int64
	Float   float64
}

func (Number) isTerm() {}

func (n Number) String() string {
	if n.IsFloat {
		s := strconv.FormatFloat(n.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		return s
	}
	return strconv.FormatInt(n.Int, 10)
}

// Variable is an uppercase- or underscore-led identifier.
type Variable struct {
	Name string
}

func (Variable) isTerm() {}

func (v Variable) String() string { return v.Name }

// Atom is a lowercase, quoted, or symbolic-run identifier.
type Atom struct {
	Name string
}

func (Atom) isTerm() {}

func (a Atom) String() string {
	if needsQuote(a.Name) {
		return "'" + a.Name + "'"
	}
	return a.Name
}

func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	r := rune(s[0])
	if !(r >= 'a' && r <= 'z') {
		return true
	}
	for _, c := range s {
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return true
		}
	}
	return false
}

// Compound is a functor applied to an ordered sequence of argument Terms.
type Compound struct {
	Functor string
	Args    []Term
}

func (Compound) isTerm() {}

func (c Compound) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", Atom{Name: c.Functor}.String(), strings.Join(parts, ","))
}

// List is an ordered sequence of Terms rendered with bracket syntax.
type List struct {
	Elems []Term
}

func (List) isTerm() {}

func (l List) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Render is the canonical rendering function used by the parser round-trip
// property tests: parse(Render(t)) must be structurally equal to t.
func Render(t Term) string {
	return t.String()
}
