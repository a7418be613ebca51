package term

import "fmt"

// FlattenDottedList recognizes a List term or a right-nested '.'(H, T)
// compound chain terminated by the atom '[]' and returns the elements in
// order. Any other shape is a translation error.
func FlattenDottedList(t Term) ([]Term, error) {
	switch v := t.(type) {
	case List:
		return v.Elems, nil
	case Atom:
		if v.Name == "[]" {
			return nil, nil
		}
		return nil, fmt.Errorf("term: %q is not a list", v.Name)
	case Compound:
		if v.Functor != "." || len(v.Args) != 2 {
			return nil, fmt.Errorf("term: compound %s/%d is not a dotted list cell", v.Functor, len(v.Args))
		}
		rest, err := FlattenDottedList(v.Args[1])
		if err != nil {
			return nil, err
		}
		return append([]Term{v.Args[0]}, rest...), nil
	default:
		return nil, fmt.Errorf("term: value is not list-tagged or a dotted cell")
	}
}

// ParseBindingList reads a sequence of '='(Key, Value) compounds into an
// ordered slice of key/value term pairs. Key must be an Atom or Variable.
type BindingPair struct {
	Key   string
	Value Term
}

func ParseBindingList(elems []Term) ([]BindingPair, error) {
	out := make([]BindingPair, 0, len(elems))
	for _, e := range elems {
		c, ok := e.(Compound)
		if !ok || c.Functor != "=" || len(c.Args) != 2 {
			return nil, fmt.Errorf("term: binding element is not a '='/2 compound: %s", Render(e))
		}
		var key string
		switch k := c.Args[0].(type) {
		case Atom:
			key = k.Name
		case Variable:
			key = k.Name
		default:
			return nil, fmt.Errorf("term: binding key must be an atom or variable, got %T", c.Args[0])
		}
		out = append(out, BindingPair{Key: key, Value: c.Args[1]})
	}
	return out, nil
}
