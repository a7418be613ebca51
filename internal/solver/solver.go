// Package solver manages a target/reference solver subprocess, its
// B-parser sibling, and the solve() request/response protocol.
package solver

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bfuzz/bfuzz/internal/bferrors"
	"github.com/bfuzz/bfuzz/internal/bflog"
	"github.com/bfuzz/bfuzz/internal/solution"
	"github.com/bfuzz/bfuzz/internal/term"
	"github.com/bfuzz/bfuzz/internal/wire"
)

const (
	defaultTimeout        = 2500 * time.Millisecond
	defaultPenaltyFactor  = 2.0
	defaultPrologCall     = "cbc_timed_solve_with_opts($base,$options,$pred,_,Res,Msec)"
	defaultCallResultVar  = "Res"
	defaultCallTimeVar    = "Msec"
)

var startupBannerPrefixes = []string{
	"Starting Socket Server",
	"Application Path: ",
	"Port: ",
	"probcli revision: ",
	"user interrupt reference id",
	"-- starting command loop --",
}

// Answer is "yes" or "no" per §4.5 step 3.
type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

// InfoKind classifies the Res binding per §4.5 step 5.
type InfoKind string

const (
	InfoContradictionFound InfoKind = "contradiction_found"
	InfoTimeOut            InfoKind = "time_out"
	InfoNoSolutionFound    InfoKind = "no_solution_found"
	InfoError              InfoKind = "error"
	InfoSolution           InfoKind = "solution"
)

// Reply is the fully classified result of solve().
type Reply struct {
	Answer   Answer
	Info     InfoKind
	Detail   string
	Bindings solution.Bindings
	Msec     float64
}

// Config configures one Handle; field names mirror the config package's
// SolverConfig but solver stays independent of it to avoid an import
// cycle and to keep its own sensible defaults.
type Config struct {
	Path          string
	BaseSolver    string
	Preferences   map[string]string
	PrologCall    string
	CallOptions   string
	CallResultVar string
	CallTimeVar   string
	Timeout       time.Duration
	PenaltyFactor float64

	ParserPath   string
	InterruptBin string
}

// Handle owns a solver subprocess, its framed socket, a sibling B-parser
// subprocess and socket, and the interrupt reference id parsed from the
// startup banner.
type Handle struct {
	mu sync.RWMutex

	id  string
	cfg Config

	cmd        *exec.Cmd
	sock       *wire.FramedSocket
	parserCmd  *exec.Cmd
	parserSock *wire.FramedSocket
	interruptID string
	stderr      *stderrTail
}

// stderrTail keeps the most recent lines a subprocess wrote to stderr, so
// an "error" reply's detail can be filled in from the last few lines per
// §4.5 step 5.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
}

func newStderrTail(r interface{ Read([]byte) (int, error) }) *stderrTail {
	t := &stderrTail{}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			t.mu.Lock()
			t.lines = append(t.lines, sc.Text())
			if len(t.lines) > 32 {
				t.lines = t.lines[len(t.lines)-32:]
			}
			t.mu.Unlock()
		}
	}()
	return t
}

func (t *stderrTail) last(n int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return ""
	}
	if n > len(t.lines) {
		n = len(t.lines)
	}
	return strings.Join(t.lines[len(t.lines)-n:], "\n")
}

// New constructs a Handle for solver id using cfg, applying defaults for
// any zero-valued field.
func New(id string, cfg Config) *Handle {
	if cfg.BaseSolver == "" {
		cfg.BaseSolver = "prob"
	}
	if cfg.PrologCall == "" {
		cfg.PrologCall = defaultPrologCall
	}
	if cfg.CallResultVar == "" {
		cfg.CallResultVar = defaultCallResultVar
	}
	if cfg.CallTimeVar == "" {
		cfg.CallTimeVar = defaultCallTimeVar
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PenaltyFactor == 0 {
		cfg.PenaltyFactor = defaultPenaltyFactor
	}
	return &Handle{id: id, cfg: cfg}
}

// Start launches the solver subprocess (validating its six-line startup
// banner) and its B-parser sibling.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startLocked(ctx)
}

func (h *Handle) startLocked(ctx context.Context) error {
	args := []string{}
	for k, v := range h.cfg.Preferences {
		args = append(args, "-p", k, cliBool(v))
	}

	cmd := exec.CommandContext(ctx, h.cfg.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("solver %s: stdout pipe: %w", h.id, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("solver %s: stderr pipe: %w", h.id, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("solver %s: start: %w", h.id, err)
	}
	h.stderr = newStderrTail(stderr)

	port, interruptID, err := scanStartupBanner(stdout, 10*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return &bferrors.SolverStartupError{SolverID: h.id, Banner: err.Error()}
	}

	sock, err := wire.Dial(fmt.Sprintf("localhost:%d", port), wire.SOH, 10*time.Second)
	if err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("solver %s: dial: %w", h.id, err)
	}

	h.cmd = cmd
	h.sock = sock
	h.interruptID = interruptID

	if h.cfg.ParserPath != "" {
		pcmd := exec.CommandContext(ctx, h.cfg.ParserPath)
		pstdout, err := pcmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("solver %s: parser stdout pipe: %w", h.id, err)
		}
		if err := pcmd.Start(); err != nil {
			return fmt.Errorf("solver %s: parser start: %w", h.id, err)
		}
		pport, err := scanPortOnly(pstdout, 10*time.Second)
		if err != nil {
			_ = pcmd.Process.Kill()
			return &bferrors.SolverStartupError{SolverID: h.id, Banner: err.Error()}
		}
		psock, err := wire.Dial(fmt.Sprintf("localhost:%d", pport), wire.SOH, 10*time.Second)
		if err != nil {
			_ = pcmd.Process.Kill()
			return fmt.Errorf("solver %s: parser dial: %w", h.id, err)
		}
		h.parserCmd = pcmd
		h.parserSock = psock
	}

	bflog.For(bflog.CategorySolver).Infow("solver started", "id", h.id, "port", port)
	return nil
}

func cliBool(v string) string {
	switch strings.ToLower(v) {
	case "true", "false":
		return strings.ToUpper(v)
	default:
		return v
	}
}

func scanStartupBanner(r interface{ Read([]byte) (int, error) }, timeout time.Duration) (port int, interruptID string, err error) {
	type result struct {
		port int
		id   string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sc := bufio.NewScanner(r)
		var p int
		var iid string
		for i := 0; i < len(startupBannerPrefixes); i++ {
			if !sc.Scan() {
				done <- result{err: fmt.Errorf("startup banner truncated at line %d (%v)", i, sc.Err())}
				return
			}
			line := sc.Text()
			prefix := startupBannerPrefixes[i]
			if !strings.HasPrefix(line, prefix) {
				done <- result{err: fmt.Errorf("startup banner line %d: expected prefix %q, got %q", i, prefix, line)}
				return
			}
			switch prefix {
			case "Port: ":
				n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
				if convErr != nil {
					done <- result{err: fmt.Errorf("startup banner Port line: %w", convErr)}
					return
				}
				p = n
			case "user interrupt reference id":
				iid = strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
		done <- result{port: p, id: iid}
	}()
	select {
	case r := <-done:
		return r.port, r.id, r.err
	case <-time.After(timeout):
		return 0, "", fmt.Errorf("timed out waiting for startup banner")
	}
}

func scanPortOnly(r interface{ Read([]byte) (int, error) }, timeout time.Duration) (int, error) {
	done := make(chan struct {
		port int
		err  error
	}, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "Port: ") {
				n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Port: ")))
				done <- struct {
					port int
					err  error
				}{n, err}
				return
			}
		}
		done <- struct {
			port int
			err  error
		}{0, fmt.Errorf("parser stdout closed before Port: line")}
	}()
	select {
	case r := <-done:
		return r.port, r.err
	case <-time.After(timeout):
		return 0, fmt.Errorf("timed out waiting for parser Port: line")
	}
}

// Close terminates both subprocesses and their sockets.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

func (h *Handle) closeLocked() error {
	if h.sock != nil {
		_ = h.sock.Close()
		h.sock = nil
	}
	if h.parserSock != nil {
		_ = h.parserSock.Close()
		h.parserSock = nil
	}
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
		_ = h.cmd.Wait()
		h.cmd = nil
	}
	h.stderr = nil
	if h.parserCmd != nil && h.parserCmd.Process != nil {
		_ = h.parserCmd.Process.Kill()
		_ = h.parserCmd.Wait()
		h.parserCmd = nil
	}
	return nil
}

// Restart closes and relaunches both subprocesses, preserving handle
// identity.
func (h *Handle) Restart(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.closeLocked()
	return h.startLocked(ctx)
}

// ParseError is returned by Solve when the B-parser rejects the
// predicate text, or when the solver's reply cannot be parsed as a Term.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return fmt.Sprintf("solver: parse error: %s", e.Message) }

// Solve parses predicate via the B-parser, builds a query from the
// configured template, and evaluates it sampSize times (default 1),
// reporting the ceiling of the arithmetic mean of the sampled times. If
// sampSize > 1 the answer/info/bindings come from the first sample.
func (h *Handle) Solve(predicate string, sampSize int) (Reply, error) {
	if sampSize < 1 {
		sampSize = 1
	}

	parsed, err := h.parsePredicate(predicate)
	if err != nil {
		return Reply{}, err
	}

	var first Reply
	var total float64
	for i := 0; i < sampSize; i++ {
		reply, err := h.solveOnce(parsed)
		if err != nil {
			return Reply{}, err
		}
		if i == 0 {
			first = reply
		}
		total += reply.Msec
	}
	first.Msec = math.Ceil(total / float64(sampSize))
	return first, nil
}

func (h *Handle) parsePredicate(predicate string) (string, error) {
	h.mu.RLock()
	psock := h.parserSock
	timeout := h.cfg.Timeout
	h.mu.RUnlock()
	if psock == nil {
		return predicate, nil
	}
	if err := psock.SendRequest(fmt.Sprintf("predicate\n%s\n", predicate)); err != nil {
		return "", fmt.Errorf("solver %s: send parse request: %w", h.id, err)
	}
	resp, err := psock.ReadLine(timeout)
	if err != nil {
		return "", &bferrors.SolverTimeout{SolverID: h.id, Timeout: timeout.String()}
	}
	if strings.HasPrefix(resp, "parse_exception") {
		return "", &ParseError{Message: resp}
	}
	return resp, nil
}

func (h *Handle) solveOnce(parsedPred string) (Reply, error) {
	query := h.buildQuery(parsedPred)

	h.mu.RLock()
	sock := h.sock
	timeout := h.cfg.Timeout
	h.mu.RUnlock()
	if sock == nil {
		return Reply{}, fmt.Errorf("solver %s: handle not started", h.id)
	}

	if err := sock.SendRequest(query); err != nil {
		return Reply{}, fmt.Errorf("solver %s: send query: %w", h.id, err)
	}
	resp, err := sock.ReadResponse(timeout)
	if err != nil {
		h.interrupt()
		if rerr := h.Restart(context.Background()); rerr != nil {
			bflog.For(bflog.CategorySolver).Warnw("solver restart after timeout failed", "id", h.id, "err", rerr)
		}
		return Reply{}, &bferrors.SolverTimeout{SolverID: h.id, Timeout: timeout.String()}
	}

	return h.classifyReply(resp)
}

func (h *Handle) buildQuery(pred string) string {
	q := h.cfg.PrologCall
	q = strings.ReplaceAll(q, "$pred", pred)
	q = strings.ReplaceAll(q, "$base", strings.ToLower(h.cfg.BaseSolver))
	q = strings.ReplaceAll(q, "$options", h.cfg.CallOptions)
	return q
}

// interrupt fires the external interrupt binary against the solver's
// interrupt reference id. Failure is not itself fatal: the caller already
// treats the slow request as a Timeout.
func (h *Handle) interrupt() {
	h.mu.RLock()
	bin := h.cfg.InterruptBin
	id := h.interruptID
	h.mu.RUnlock()
	if bin == "" || id == "" {
		return
	}
	cmd := exec.Command(bin, id)
	_ = cmd.Run()
}

func (h *Handle) classifyReply(resp string) (Reply, error) {
	resp = strings.TrimSuffix(strings.TrimSpace(resp), ".")
	t, err := term.Parse(resp)
	if err != nil {
		return Reply{}, &ParseError{Message: err.Error()}
	}
	c, ok := t.(term.Compound)
	if !ok {
		if a, isAtom := t.(term.Atom); isAtom && a.Name == "no" {
			return Reply{Answer: AnswerNo, Msec: -1}, nil
		}
		return Reply{}, &bferrors.GeneratorProtocolError{Raw: resp, Err: fmt.Errorf("unexpected top-level reply term")}
	}

	switch c.Functor {
	case "no":
		return Reply{Answer: AnswerNo, Msec: -1}, nil
	case "yes":
		if len(c.Args) != 1 {
			return Reply{}, &bferrors.GeneratorProtocolError{Raw: resp, Err: fmt.Errorf("yes/%d, want yes/1", len(c.Args))}
		}
		return h.classifyYes(c.Args[0])
	default:
		return Reply{}, &bferrors.GeneratorProtocolError{Raw: resp, Err: fmt.Errorf("unexpected reply functor %q", c.Functor)}
	}
}

// classifyYes parses the top-level Bindings list of a yes(Bindings) reply.
// Bindings is a dotted list of '='(Key, Value) pairs keyed by the query's
// variable names, not a solution(...)'s binding/3 triples: that shape only
// appears nested inside the value bound to the result variable, once Res
// is known to denote an actual found solution rather than a control atom.
func (h *Handle) classifyYes(bindingsTerm term.Term) (Reply, error) {
	elems, err := term.FlattenDottedList(bindingsTerm)
	if err != nil {
		return Reply{}, &bferrors.GeneratorProtocolError{Raw: term.Render(bindingsTerm), Err: err}
	}
	pairs, err := term.ParseBindingList(elems)
	if err != nil {
		return Reply{}, &bferrors.GeneratorProtocolError{Raw: term.Render(bindingsTerm), Err: err}
	}

	var resVal term.Term
	hasRes := false
	msec := -1.0
	for _, p := range pairs {
		switch p.Key {
		case h.cfg.CallResultVar:
			resVal = p.Value
			hasRes = true
		case h.cfg.CallTimeVar:
			if n, ok := p.Value.(term.Number); ok {
				if n.IsFloat {
					msec = n.Float
				} else {
					msec = float64(n.Int)
				}
			}
		}
	}

	reply := Reply{Answer: AnswerYes, Msec: msec}
	if !hasRes {
		reply.Info = InfoSolution
		return reply, nil
	}

	switch v := resVal.(type) {
	case term.Atom:
		switch v.Name {
		case string(InfoContradictionFound):
			reply.Info = InfoContradictionFound
			return reply, nil
		case string(InfoTimeOut):
			reply.Info = InfoTimeOut
			return reply, nil
		case "error":
			reply.Info = InfoError
			reply.Detail = h.readStderrLines(3)
			return reply, nil
		}
	case term.Compound:
		if v.Functor == "no_solution_found" {
			reply.Info = InfoNoSolutionFound
			if len(v.Args) == 1 {
				reply.Detail = term.Render(v.Args[0])
			}
			return reply, nil
		}
	}

	bindings, err := solution.TranslateSolution(resVal)
	if err != nil {
		return Reply{}, &bferrors.GeneratorProtocolError{Raw: term.Render(resVal), Err: err}
	}
	reply.Info = InfoSolution
	reply.Bindings = bindings
	return reply, nil
}

func (h *Handle) readStderrLines(n int) string {
	h.mu.RLock()
	tail := h.stderr
	h.mu.RUnlock()
	if tail == nil {
		return ""
	}
	return tail.last(n)
}

// PenalizedReply synthesizes the ("no", "Socket timeout", timeout*penalty)
// reply a caller may substitute for a Timeout error, per §4.5's PAR2-style
// scoring option.
func (h *Handle) PenalizedReply() Reply {
	return Reply{
		Answer: AnswerNo,
		Info:   InfoTimeOut,
		Detail: "Socket timeout",
		Msec:   float64(h.cfg.Timeout.Milliseconds()) * h.cfg.PenaltyFactor,
	}
}
