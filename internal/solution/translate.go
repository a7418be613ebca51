package solution

import (
	"fmt"

	"github.com/bfuzz/bfuzz/internal/term"
)

// TranslateSolution reads a solution(List) compound into Bindings, where
// List is a dotted or bracketed sequence of binding(Id, Value, PPrint)
// triples.
func TranslateSolution(t term.Term) (Bindings, error) {
	c, ok := t.(term.Compound)
	if !ok || c.Functor != "solution" || len(c.Args) != 1 {
		return nil, fmt.Errorf("solution: expected solution/1, got %s", term.Render(t))
	}
	elems, err := term.FlattenDottedList(c.Args[0])
	if err != nil {
		return nil, fmt.Errorf("solution: bindings list: %w", err)
	}
	out := make(Bindings, len(elems))
	for _, e := range elems {
		bc, ok := e.(term.Compound)
		if !ok || bc.Functor != "binding" || len(bc.Args) != 3 {
			return nil, fmt.Errorf("solution: expected binding/3, got %s", term.Render(e))
		}
		id, err := identifierOf(bc.Args[0])
		if err != nil {
			return nil, err
		}
		pprint := textOf(bc.Args[2])
		val, err := TranslateValue(bc.Args[1], pprint)
		if err != nil {
			return nil, fmt.Errorf("solution: binding %s: %w", id, err)
		}
		out[id] = val
	}
	return out, nil
}

func identifierOf(t term.Term) (string, error) {
	switch v := t.(type) {
	case term.Atom:
		return v.Name, nil
	case term.Variable:
		return v.Name, nil
	default:
		return "", fmt.Errorf("solution: binding id must be atom or variable, got %T", t)
	}
}

// textOf extracts a plain string from a term that represents pretty-printed
// or string-carrying text: a bare atom, or a string(...) / quoted compound.
func textOf(t term.Term) string {
	switch v := t.(type) {
	case term.Atom:
		return v.Name
	case term.Compound:
		if len(v.Args) == 1 {
			return textOf(v.Args[0])
		}
	}
	return term.Render(t)
}

// TranslateValue maps a single Term appearing inside a solution into a
// SolutionValue, dispatching on the outer compound functor. pprint is the
// associated pretty-printed text, used only to special-case the empty set.
func TranslateValue(t term.Term, pprint string) (Value, error) {
	if pprint == "{}" {
		return Set{}, nil
	}
	switch v := t.(type) {
	case term.Number:
		if v.IsFloat {
			return Float{F: v.Float}, nil
		}
		return Int{I: v.Int}, nil
	case term.Atom:
		if v.Name == "contradiction_found" {
			return Unbound{}, nil
		}
		return Str{S: v.Name}, nil
	case term.Compound:
		switch v.Functor {
		case "int":
			if len(v.Args) != 1 {
				return nil, fmt.Errorf("solution: int/%d, want int/1", len(v.Args))
			}
			n, ok := v.Args[0].(term.Number)
			if !ok {
				return nil, fmt.Errorf("solution: int(_) argument is not a number")
			}
			return Int{I: n.Int}, nil
		case "floating":
			if len(v.Args) != 1 {
				return nil, fmt.Errorf("solution: floating/%d, want floating/1", len(v.Args))
			}
			return translateFloatArg(v.Args[0])
		case "term":
			if len(v.Args) == 1 {
				return TranslateValue(v.Args[0], "")
			}
		case "string":
			if len(v.Args) != 1 {
				return nil, fmt.Errorf("solution: string/%d, want string/1", len(v.Args))
			}
			return Str{S: textOf(v.Args[0])}, nil
		case "avl_set":
			if len(v.Args) != 1 {
				return nil, fmt.Errorf("solution: avl_set/%d, want avl_set/1", len(v.Args))
			}
			elems, err := translateAVL(v.Args[0])
			if err != nil {
				return nil, err
			}
			if seq, ok := recognizeSequence(elems); ok {
				return seq, nil
			}
			return Set{Elems: elems}, nil
		case "global_set":
			if len(v.Args) != 1 {
				return nil, fmt.Errorf("solution: global_set/%d, want global_set/1", len(v.Args))
			}
			return GlobalSet{Name: textOf(v.Args[0])}, nil
		case ",":
			if len(v.Args) != 2 {
				return nil, fmt.Errorf("solution: ','/%d, want ','/2", len(v.Args))
			}
			l, err := TranslateValue(v.Args[0], "")
			if err != nil {
				return nil, err
			}
			r, err := TranslateValue(v.Args[1], "")
			if err != nil {
				return nil, err
			}
			return Pair{Left: l, Right: r}, nil
		}
	}
	// Pass-through: a value with no recognized tag is kept as its rendered
	// text form rather than rejected outright.
	return Str{S: term.Render(t)}, nil
}

func translateFloatArg(t term.Term) (Value, error) {
	n, ok := t.(term.Number)
	if !ok {
		return nil, fmt.Errorf("solution: floating(_) argument is not a number")
	}
	if n.IsFloat {
		return Float{F: n.Float}, nil
	}
	return Float{F: float64(n.Int)}, nil
}

// translateAVL flattens an AVL tree in pre-order (self, left, right). A
// node is either the atom 'empty' or node(Value, _, _, Left, Right); the
// balance and truth slots (positions 1 and 2) are ignored.
func translateAVL(t term.Term) ([]Value, error) {
	switch v := t.(type) {
	case term.Atom:
		if v.Name == "empty" {
			return nil, nil
		}
		return nil, fmt.Errorf("solution: unexpected avl atom %q", v.Name)
	case term.Compound:
		if v.Functor != "node" || len(v.Args) != 5 {
			return nil, fmt.Errorf("solution: expected node/5, got %s/%d", v.Functor, len(v.Args))
		}
		self, err := TranslateValue(v.Args[0], "")
		if err != nil {
			return nil, err
		}
		left, err := translateAVL(v.Args[3])
		if err != nil {
			return nil, err
		}
		right, err := translateAVL(v.Args[4])
		if err != nil {
			return nil, err
		}
		out := append([]Value{self}, left...)
		return append(out, right...), nil
	default:
		return nil, fmt.Errorf("solution: avl node must be 'empty' or node/5, got %T", t)
	}
}

// recognizeSequence reports whether elems forms a 1..N indexed mapping:
// every element is a Pair whose Left is an Int, and the set of Left values
// is exactly {1, ..., len(elems)}. On success it returns the elements
// ordered by index, carrying the Right component only.
func recognizeSequence(elems []Value) (Sequence, bool) {
	n := len(elems)
	if n == 0 {
		return Sequence{}, false
	}
	byIndex := make(map[int64]Value, n)
	for _, e := range elems {
		p, ok := e.(Pair)
		if !ok {
			return Sequence{}, false
		}
		idx, ok := p.Left.(Int)
		if !ok {
			return Sequence{}, false
		}
		if _, dup := byIndex[idx.I]; dup {
			return Sequence{}, false
		}
		byIndex[idx.I] = p.Right
	}
	ordered := make([]Value, n)
	for i := int64(1); i <= int64(n); i++ {
		v, ok := byIndex[i]
		if !ok {
			return Sequence{}, false
		}
		ordered[i-1] = v
	}
	return Sequence{Elems: ordered}, true
}
