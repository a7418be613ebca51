// Package search implements the outer generate/mutate x inner
// mutation-action bandit loop that drives the generator and solvers
// toward predicates with a large target/reference performance margin.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bfuzz/bfuzz/internal/bandit"
	"github.com/bfuzz/bfuzz/internal/bferrors"
	"github.com/bfuzz/bfuzz/internal/bflog"
	"github.com/bfuzz/bfuzz/internal/config"
	"github.com/bfuzz/bfuzz/internal/csvsink"
	"github.com/bfuzz/bfuzz/internal/generator"
	"github.com/bfuzz/bfuzz/internal/runmeta"
	"github.com/bfuzz/bfuzz/internal/solver"
)

const (
	outerGenerate = "generate"
	outerMutate   = "mutate"

	contradictionsFile = "bf_contradictions.txt"
)

// SolverResult is one solver's classified outcome for an iteration.
type SolverResult struct {
	Answer solver.Answer
	Info   solver.InfoKind
	Msec   float64
}

// candidate is the outcome of one iteration, prior to the accept/reject
// decision.
type candidate struct {
	pred, rawAST, env string
	mutation          string
	margin            float64
	results           map[string]SolverResult
}

// generatorClient is the subset of *generator.Handle the loop drives.
// Declared as an interface so tests can substitute a mock generator.
type generatorClient interface {
	Generate() (generator.Triple, error)
	Mutate(rawAST, env, action string) (generator.Triple, error)
	ListActions(env string) ([]string, error)
	Restart(ctx context.Context) error
}

// solverClient is the subset of *solver.Handle the loop drives. Declared
// as an interface so tests can substitute mock solvers with hard-coded
// times.
type solverClient interface {
	Solve(predicate string, sampSize int) (solver.Reply, error)
	PenalizedReply() solver.Reply
}

// Loop owns the generator, the target/reference solver handles, the
// outer and inner bandits, the CSV sink, and the best-known state.
type Loop struct {
	cfg *config.Config
	gen generatorClient

	targets    map[string]solverClient
	references map[string]solverClient

	outer *bandit.Agent
	inner *bandit.Agent

	sink *csvsink.Sink

	bestMargin float64
	bestPred   string

	discardSocketTimeouts bool
	sampSize              int

	contradictionsPath string

	// onIterationForTest, when set, is invoked once per loop pass before
	// an action is sampled. Tests use it to cancel the run deterministically
	// after a fixed number of iterations.
	onIterationForTest func()
}

// NewLoop constructs a Loop from cfg, wiring CSV output to
// cfg.Fuzzer.CSV. gen, targets and references must already be started
// (see StartAll).
func NewLoop(cfg *config.Config, gen *generator.Handle, targetHandles, referenceHandles map[string]*solver.Handle) (*Loop, error) {
	targets := make(map[string]solverClient, len(targetHandles))
	for id, h := range targetHandles {
		targets[id] = h
	}
	references := make(map[string]solverClient, len(referenceHandles))
	for id, h := range referenceHandles {
		references[id] = h
	}
	return newLoop(cfg, gen, targets, references)
}

// newLoop is the interface-typed constructor shared by NewLoop and by
// tests that substitute mock generator/solver clients.
func newLoop(cfg *config.Config, gen generatorClient, targets, references map[string]solverClient) (*Loop, error) {
	allIDs := make([]string, 0, len(targets)+len(references))
	for id := range targets {
		allIDs = append(allIDs, id)
	}
	for id := range references {
		allIDs = append(allIDs, id)
	}

	meta := runmeta.New(cfg.Path, time.Now())
	bflog.SetRunID(meta.RunID.String())
	bflog.For(bflog.CategorySearch).Infow("run started", "run_id", meta.RunID, "config", meta.ConfigPath)

	sink, err := csvsink.Open(cfg.Fuzzer.CSV, allIDs, meta)
	if err != nil {
		return nil, fmt.Errorf("search: open csv sink: %w", err)
	}

	sampSize := 1
	if arg, ok := cfg.OptionArg("samp_size"); ok {
		if n, convErr := strconv.Atoi(arg); convErr == nil && n >= 1 {
			sampSize = n
		}
	}

	l := &Loop{
		cfg:                   cfg,
		gen:                   gen,
		targets:               targets,
		references:            references,
		outer:                 bandit.NewAgent([]string{outerGenerate, outerMutate}, bandit.DefaultDecay),
		sink:                  sink,
		bestMargin:            math.Inf(-1),
		discardSocketTimeouts: cfg.HasOption("discard_socket_timeouts"),
		sampSize:              sampSize,
		contradictionsPath:    contradictionsFile,
	}
	return l, nil
}

// StartAll launches the generator and every target and reference solver
// subprocess concurrently via errgroup, since startup order is
// unconstrained by §5 (only per-iteration solve order is).
func StartAll(ctx context.Context, gen *generator.Handle, targets, references map[string]*solver.Handle) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return gen.Start(ctx) })
	for id, h := range targets {
		id, h := id, h
		g.Go(func() error {
			if err := h.Start(ctx); err != nil {
				return fmt.Errorf("search: start target %s: %w", id, err)
			}
			return nil
		})
	}
	for id, h := range references {
		id, h := id, h
		g.Go(func() error {
			if err := h.Start(ctx); err != nil {
				return fmt.Errorf("search: start reference %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close flushes the CSV sink.
func (l *Loop) Close() error {
	return l.sink.Close()
}

// Run executes the algorithm of §4.7 until ctx is cancelled or a fatal
// error occurs.
func (l *Loop) Run(ctx context.Context) error {
	log := bflog.For(bflog.CategorySearch)

	tri, err := l.gen.Generate()
	if err != nil {
		return fmt.Errorf("search: initial generate: %w", err)
	}
	results, err := l.evalAll(tri.WDPred)
	if err != nil {
		return fmt.Errorf("search: initial eval: %w", err)
	}
	margin := computeMargin(results, l.targets, l.references)
	if err := l.writeRow(margin, results, tri.WDPred, tri.RawAST); err != nil {
		return err
	}
	l.bestMargin = margin
	l.bestPred = tri.WDPred

	actions, err := l.gen.ListActions(tri.Env)
	if err != nil {
		return fmt.Errorf("search: list_actions: %w", err)
	}
	l.inner = bandit.NewAgent(actions, bandit.DefaultDecay)

	curRaw, curEnv := tri.RawAST, tri.Env

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if l.onIterationForTest != nil {
			l.onIterationForTest()
		}

		action := l.outer.SampleAction()
		var mutation string
		if action == outerMutate && len(actions) > 0 {
			mutation = l.inner.SampleAction()
		}

		cand, skip, err := l.iterate(curRaw, curEnv, mutation)
		if err != nil {
			var pe *bferrors.PredicateParseError
			var gt *bferrors.GeneratorTimeout
			switch {
			case errors.As(err, &pe), errors.As(err, &gt):
				log.Warnw("iteration skipped", "err", err)
				continue
			default:
				l.sink.Close()
				return fmt.Errorf("search: fatal iteration error: %w", err)
			}
		}
		if skip {
			continue
		}

		if l.hasContradiction(cand.results) {
			l.logContradiction(cand)
			continue
		}
		if l.filterSuppresses(cand.results) {
			continue
		}

		reward := 0
		if cand.margin > l.bestMargin {
			reward = 1
			l.bestMargin = cand.margin
			l.bestPred = cand.pred
			curRaw, curEnv = cand.rawAST, cand.env
			if err := l.writeRow(cand.margin, cand.results, cand.pred, cand.rawAST); err != nil {
				return err
			}
		}

		_ = l.outer.ReceiveReward(action, reward)
		if action == outerMutate && mutation != "" {
			_ = l.inner.ReceiveReward(mutation, reward)
		}
	}
}

func (l *Loop) iterate(curRaw, curEnv, mutation string) (candidate, bool, error) {
	var tri generator.Triple
	var err error
	if mutation == "" {
		tri, err = l.gen.Generate()
	} else {
		tri, err = l.gen.Mutate(curRaw, curEnv, mutation)
	}
	if err != nil {
		var gt *bferrors.GeneratorTimeout
		if errors.As(err, &gt) {
			_ = l.gen.Restart(context.Background())
			return candidate{}, true, nil
		}
		return candidate{}, false, err
	}

	results, err := l.evalAll(tri.WDPred)
	if err != nil {
		var pp *bferrors.PredicateParseError
		var st *bferrors.SolverTimeout
		if errors.As(err, &pp) || errors.As(err, &st) {
			return candidate{}, true, nil
		}
		return candidate{}, false, err
	}

	margin := computeMargin(results, l.targets, l.references)
	return candidate{
		pred:     tri.WDPred,
		rawAST:   tri.RawAST,
		env:      tri.Env,
		mutation: mutation,
		margin:   margin,
		results:  results,
	}, false, nil
}

// evalAll solves pred against references then targets, in that order
// (§5 ordering guarantee), synthesizing a penalty reply on timeout
// unless discard_socket_timeouts suppresses the whole iteration.
func (l *Loop) evalAll(pred string) (map[string]SolverResult, error) {
	out := make(map[string]SolverResult, len(l.targets)+len(l.references))

	evalGroup := func(group map[string]solverClient) error {
		for id, h := range group {
			reply, err := h.Solve(pred, l.sampSize)
			if err != nil {
				var pe *solver.ParseError
				if errors.As(err, &pe) {
					return &bferrors.PredicateParseError{Predicate: pred, Err: err}
				}
				var st *bferrors.SolverTimeout
				if errors.As(err, &st) {
					if l.discardSocketTimeouts {
						return err
					}
					reply = h.PenalizedReply()
				} else {
					return err
				}
			}
			out[id] = SolverResult{Answer: reply.Answer, Info: reply.Info, Msec: reply.Msec}
		}
		return nil
	}

	if err := evalGroup(l.references); err != nil {
		return nil, err
	}
	if err := evalGroup(l.targets); err != nil {
		return nil, err
	}
	return out, nil
}

// computeMargin is min(target times) - max(reference times), in ms.
func computeMargin(results map[string]SolverResult, targets, references map[string]solverClient) float64 {
	minTarget := math.Inf(1)
	for id := range targets {
		if r, ok := results[id]; ok && r.Msec >= 0 {
			minTarget = math.Min(minTarget, r.Msec)
		}
	}
	maxRef := math.Inf(-1)
	for id := range references {
		if r, ok := results[id]; ok && r.Msec >= 0 {
			maxRef = math.Max(maxRef, r.Msec)
		}
	}
	if math.IsInf(minTarget, 1) || math.IsInf(maxRef, -1) {
		return math.Inf(-1)
	}
	return minTarget - maxRef
}

func (l *Loop) writeRow(margin float64, results map[string]SolverResult, pred, rawAST string) error {
	cells := make(map[string]csvsink.Cell, len(results))
	for id, r := range results {
		if r.Msec >= 0 {
			cells[id] = csvsink.Cell{Present: true, Msec: r.Msec}
		}
	}
	return l.sink.WriteRow(csvsink.Row{Margin: margin, Times: cells, Pred: pred, RawAST: rawAST})
}

// hasContradiction reports whether the merged results contain at least
// one yes/solution and at least one yes/contradiction_found.
func (l *Loop) hasContradiction(results map[string]SolverResult) bool {
	sawSolution, sawContradiction := false, false
	for _, r := range results {
		if r.Answer != solver.AnswerYes {
			continue
		}
		switch r.Info {
		case solver.InfoSolution:
			sawSolution = true
		case solver.InfoContradictionFound:
			sawContradiction = true
		}
	}
	return sawSolution && sawContradiction
}

func (l *Loop) logContradiction(c candidate) {
	ids := make([]string, 0, len(c.results))
	for id := range c.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		r := c.results[id]
		parts = append(parts, fmt.Sprintf("%s=%s/%s", id, r.Answer, r.Info))
	}

	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339), c.env, c.pred, c.rawAST, joinComma(parts))

	f, err := os.OpenFile(l.contradictionsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		bflog.For(bflog.CategorySearch).Errorw("open contradictions file", "err", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		bflog.For(bflog.CategorySearch).Errorw("write contradictions file", "err", err)
		return
	}
	_ = f.Sync()
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// filterSuppresses applies the solutions_only / min_one_solution options.
func (l *Loop) filterSuppresses(results map[string]SolverResult) bool {
	if l.cfg.HasOption("solutions_only") {
		for _, r := range results {
			if r.Answer != solver.AnswerYes {
				continue
			}
			if r.Info != solver.InfoSolution && r.Info != solver.InfoContradictionFound {
				return true
			}
		}
	}
	if l.cfg.HasOption("min_one_solution") {
		sawSolution, sawContradiction := false, false
		for _, r := range results {
			if r.Answer != solver.AnswerYes {
				continue
			}
			if r.Info == solver.InfoSolution {
				sawSolution = true
			}
			if r.Info == solver.InfoContradictionFound {
				sawContradiction = true
			}
		}
		if !(sawSolution && sawContradiction) {
			return true
		}
	}
	return false
}
