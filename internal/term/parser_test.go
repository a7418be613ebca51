package term

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want Term
	}{
		{"0b101", Number{Int: 5}},
		{"3.14", Number{IsFloat: true, Float: 3.14}},
		{"3.14e3", Number{IsFloat: true, Float: 3140.0}},
		{".14", Number{IsFloat: true, Float: 0.14}},
		{".14e2", Number{IsFloat: true, Float: 14.0}},
		{"3.14e-3", Number{IsFloat: true, Float: 0.00314}},
		{"123", Number{Int: 123}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestParseNumberRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}

func TestParseAtom(t *testing.T) {
	cases := []struct {
		in   string
		want Term
	}{
		{"atom_with_underscore", Atom{Name: "atom_with_underscore"}},
		{"atom123", Atom{Name: "atom123"}},
		{"'Hello world'", Atom{Name: "Hello world"}},
		{"!", Atom{Name: "!"}},
		{"=:=", Atom{Name: "=:="}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestParseListAndCompound(t *testing.T) {
	got, err := Parse("[a, 1]")
	require.NoError(t, err)
	want := List{Elems: []Term{Atom{Name: "a"}, Number{Int: 1}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err = Parse("=(a, b)")
	require.NoError(t, err)
	want2 := Compound{Functor: "=", Args: []Term{Atom{Name: "a"}, Atom{Name: "b"}}}
	if diff := cmp.Diff(want2, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	terms := []Term{
		Number{Int: 42},
		Number{IsFloat: true, Float: 3.5},
		Variable{Name: "X"},
		Atom{Name: "foo"},
		Atom{Name: "Hello world"},
		Compound{Functor: "f", Args: []Term{Atom{Name: "a"}, Number{Int: 2}}},
		List{Elems: []Term{Atom{Name: "a"}, Atom{Name: "b"}}},
		List{},
	}
	for _, want := range terms {
		rendered := Render(want)
		got, err := Parse(rendered)
		require.NoError(t, err, rendered)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip %q mismatch (-want +got):\n%s", rendered, diff)
		}
	}
}

func TestFlattenDottedList(t *testing.T) {
	dotted := Compound{Functor: ".", Args: []Term{
		Atom{Name: "a"},
		Compound{Functor: ".", Args: []Term{Atom{Name: "b"}, Atom{Name: "[]"}}},
	}}
	got, err := FlattenDottedList(dotted)
	require.NoError(t, err)
	want := []Term{Atom{Name: "a"}, Atom{Name: "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err = FlattenDottedList(Number{Int: 1})
	require.Error(t, err)
}

func TestParseBindingList(t *testing.T) {
	elems := []Term{
		Compound{Functor: "=", Args: []Term{Atom{Name: "X"}, Number{Int: 1}}},
	}
	got, err := ParseBindingList(elems)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "X", got[0].Key)
}
