// Package solution translates parsed reply Terms into the native value
// model solvers and the generator actually operate on: ints, floats,
// strings, sets, sequences, pairs and variable bindings.
package solution

import (
	"fmt"
	"sort"
	"strconv"
)

// Value is the sum type produced by translating a solved Term.
type Value interface {
	isValue()
	String() string
}

type Int struct{ I int64 }

func (Int) isValue()          {}
func (v Int) String() string  { return strconv.FormatInt(v.I, 10) }

type Float struct{ F float64 }

func (Float) isValue()         {}
func (v Float) String() string { return strconv.FormatFloat(v.F, 'g', -1, 64) }

type Str struct{ S string }

func (Str) isValue()          {}
func (v Str) String() string  { return strconv.Quote(v.S) }

// GlobalSet names a generator-side global set by identifier rather than
// enumerating its members.
type GlobalSet struct{ Name string }

func (GlobalSet) isValue()         {}
func (v GlobalSet) String() string { return "global_set(" + v.Name + ")" }

type Pair struct {
	Left  Value
	Right Value
}

func (Pair) isValue() {}
func (v Pair) String() string {
	return fmt.Sprintf("(%s,%s)", v.Left, v.Right)
}

// Set is an unordered collection whose element equality is structural
// (compared via their rendered string form, since Values may embed slices
// and are therefore not directly comparable with ==).
type Set struct{ Elems []Value }

func (Set) isValue() {}
func (v Set) String() string {
	keys := renderedSorted(v.Elems)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out + "}"
}

// Equal reports whether two Sets contain the same elements, ignoring
// order and duplicate multiplicity.
func (v Set) Equal(o Set) bool {
	a := dedupRendered(v.Elems)
	b := dedupRendered(o.Elems)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func renderedSorted(vs []Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	sort.Strings(out)
	return out
}

func dedupRendered(vs []Value) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vs {
		s := v.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Sequence is an ordered collection recognized from a Set whose elements
// are Pair(Int, X) forming a contiguous 1..N index.
type Sequence struct{ Elems []Value }

func (Sequence) isValue() {}
func (v Sequence) String() string {
	out := "["
	for i, e := range v.Elems {
		if i > 0 {
			out += ","
		}
		out += e.String()
	}
	return out + "]"
}

// Unbound marks a contradiction_found result where no value is available.
type Unbound struct{}

func (Unbound) isValue()        {}
func (Unbound) String() string { return "<unbound>" }

// Bindings maps an identifier to its translated SolutionValue.
type Bindings map[string]Value
