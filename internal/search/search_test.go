package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bfuzz/bfuzz/internal/bferrors"
	"github.com/bfuzz/bfuzz/internal/config"
	"github.com/bfuzz/bfuzz/internal/generator"
	"github.com/bfuzz/bfuzz/internal/solver"
)

// fakeGenerator replays a fixed script of generate/mutate triples in
// order, one per call, matching the end-to-end scenario fixture.
type fakeGenerator struct {
	script []generator.Triple
	i      int
	actions []string
}

func (g *fakeGenerator) next() generator.Triple {
	tri := g.script[g.i]
	if g.i < len(g.script)-1 {
		g.i++
	}
	return tri
}

func (g *fakeGenerator) Generate() (generator.Triple, error) { return g.next(), nil }
func (g *fakeGenerator) Mutate(rawAST, env, action string) (generator.Triple, error) {
	return g.next(), nil
}
func (g *fakeGenerator) ListActions(env string) ([]string, error) { return g.actions, nil }
func (g *fakeGenerator) Restart(ctx context.Context) error        { return nil }

// fakeSolver returns a fixed sequence of replies, one per Solve call.
type fakeSolver struct {
	replies []solver.Reply
	i       int
}

func (s *fakeSolver) Solve(predicate string, sampSize int) (solver.Reply, error) {
	r := s.replies[s.i]
	if s.i < len(s.replies)-1 {
		s.i++
	}
	return r, nil
}
func (s *fakeSolver) PenalizedReply() solver.Reply {
	return solver.Reply{Answer: solver.AnswerNo, Info: solver.InfoTimeOut, Msec: 5000}
}

func yesSolution(msec float64) solver.Reply {
	return solver.Reply{Answer: solver.AnswerYes, Info: solver.InfoSolution, Msec: msec}
}

func newTestConfig(t *testing.T, csvPath string) *config.Config {
	return &config.Config{
		Fuzzer: config.FuzzerConfig{CSV: csvPath, Targets: []string{"C"}, References: []string{"A", "B"}},
	}
}

func TestEndToEndScenario(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "results.csv")
	cfg := newTestConfig(t, csvPath)

	gen := &fakeGenerator{
		script: []generator.Triple{
			{WDPred: "p1", RawAST: "r1", Env: "e1"},
			{WDPred: "p2", RawAST: "r2", Env: "e1"},
			{WDPred: "p3", RawAST: "r3", Env: "e1"},
			{WDPred: "p4", RawAST: "r4", Env: "e1"},
		},
		actions: []string{"m1", "m2"},
	}

	a := &fakeSolver{replies: []solver.Reply{yesSolution(50), yesSolution(40), yesSolution(30), {Answer: solver.AnswerYes, Info: solver.InfoSolution, Msec: 1}}}
	b := &fakeSolver{replies: []solver.Reply{yesSolution(70), yesSolution(60), yesSolution(45), {Answer: solver.AnswerYes, Info: solver.InfoSolution, Msec: 1}}}
	c := &fakeSolver{replies: []solver.Reply{yesSolution(120), yesSolution(55), yesSolution(200), {Answer: solver.AnswerYes, Info: solver.InfoContradictionFound, Msec: 1}}}

	loop, err := newLoop(cfg, gen, map[string]solverClient{"C": c}, map[string]solverClient{"A": a, "B": b})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	iterations := 0
	loop.onIterationForTest = func() {
		iterations++
		if iterations >= 3 {
			cancel()
		}
	}

	err = loop.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, loop.Close())

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "margin,A,B,C,pred,raw_ast")
	require.Contains(t, content, `"p1","r1"`)
	require.Contains(t, content, `"p3","r3"`)
	require.NotContains(t, content, `"p2","r2"`)
}

func TestFilterSuppressesSolutionsOnly(t *testing.T) {
	cfg := &config.Config{Fuzzer: config.FuzzerConfig{Options: []string{"solutions_only"}}}
	loop := &Loop{cfg: cfg}
	results := map[string]SolverResult{
		"A": {Answer: solver.AnswerYes, Info: solver.InfoTimeOut},
	}
	require.True(t, loop.filterSuppresses(results))
}

func TestFilterAllowsMinOneSolution(t *testing.T) {
	cfg := &config.Config{Fuzzer: config.FuzzerConfig{Options: []string{"min_one_solution"}}}
	loop := &Loop{cfg: cfg}
	results := map[string]SolverResult{
		"A": {Answer: solver.AnswerYes, Info: solver.InfoSolution},
		"B": {Answer: solver.AnswerYes, Info: solver.InfoContradictionFound},
	}
	require.False(t, loop.filterSuppresses(results))
}

func TestHasContradiction(t *testing.T) {
	loop := &Loop{}
	results := map[string]SolverResult{
		"A": {Answer: solver.AnswerYes, Info: solver.InfoSolution},
		"C": {Answer: solver.AnswerYes, Info: solver.InfoContradictionFound},
	}
	require.True(t, loop.hasContradiction(results))
}

func TestComputeMargin(t *testing.T) {
	targets := map[string]solverClient{"C": nil}
	references := map[string]solverClient{"A": nil, "B": nil}
	results := map[string]SolverResult{
		"A": {Msec: 50},
		"B": {Msec: 70},
		"C": {Msec: 120},
	}
	require.Equal(t, 50.0, computeMargin(results, targets, references))
}

func TestPredicateParseErrorMatchesErrorsAs(t *testing.T) {
	var pe *bferrors.PredicateParseError
	require.ErrorAs(t, &bferrors.PredicateParseError{Predicate: "x"}, &pe)
}
