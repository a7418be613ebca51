// Package generator manages the external constraint-generation engine
// subprocess and its request/response protocol.
package generator

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bfuzz/bfuzz/internal/bferrors"
	"github.com/bfuzz/bfuzz/internal/bflog"
	"github.com/bfuzz/bfuzz/internal/wire"
)

const (
	defaultStartupTimeout = 10 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// RandomState is the generator's four-integer RNG state tuple.
type RandomState struct {
	X, Y, Z, B int
}

const (
	xMax = 30268
	yMax = 30306
	zMax = 30322
	bMax = 1_000_000
)

// Triple is the (predicate, raw AST, environment) result common to
// generate and mutate.
type Triple struct {
	WDPred string
	RawAST string
	Env    string
}

// Handle owns a generator subprocess (or a connection to an
// already-running one in existing_port mode) and its framed socket.
type Handle struct {
	mu sync.RWMutex

	binPath       string
	existingPort  int
	cmd           *exec.Cmd
	sock          *wire.FramedSocket
	requestTimeout time.Duration
}

// New constructs a Handle. If existingPort is non-zero, Start connects to
// localhost:existingPort instead of spawning binPath.
func New(binPath string, existingPort int) *Handle {
	return &Handle{binPath: binPath, existingPort: existingPort, requestTimeout: defaultRequestTimeout}
}

// Start launches the subprocess (unless existing_port mode) and connects.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startLocked(ctx)
}

func (h *Handle) startLocked(ctx context.Context) error {
	if h.existingPort != 0 {
		sock, err := wire.Dial(fmt.Sprintf("localhost:%d", h.existingPort), wire.NUL, defaultStartupTimeout)
		if err != nil {
			return &bferrors.GeneratorTimeout{Op: "connect", Timeout: defaultStartupTimeout.String()}
		}
		h.sock = sock
		return nil
	}

	cmd := exec.CommandContext(ctx, h.binPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("generator: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("generator: start %s: %w", h.binPath, err)
	}

	port, err := scanPortLine(stdout, defaultStartupTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		return &bferrors.GeneratorProtocolError{Raw: "<startup banner>", Err: err}
	}

	sock, err := wire.Dial(fmt.Sprintf("localhost:%d", port), wire.NUL, defaultStartupTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		return &bferrors.GeneratorTimeout{Op: "connect", Timeout: defaultStartupTimeout.String()}
	}

	h.cmd = cmd
	h.sock = sock
	bflog.For(bflog.CategoryGenerator).Infow("generator started", "port", port)
	return nil
}

func scanPortLine(r interface{ Read([]byte) (int, error) }, timeout time.Duration) (int, error) {
	type result struct {
		port int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "Port: ") {
				n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Port: ")))
				done <- result{port: n, err: err}
				return
			}
		}
		done <- result{err: fmt.Errorf("generator: stdout closed before Port: line (%v)", sc.Err())}
	}()
	select {
	case r := <-done:
		return r.port, r.err
	case <-time.After(timeout):
		return 0, fmt.Errorf("generator: timed out waiting for Port: line")
	}
}

// Close terminates the subprocess (if any) and its socket.
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
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
		_ = h.cmd.Wait()
		h.cmd = nil
	}
	return nil
}

// Restart closes and relaunches the subprocess, preserving handle
// identity.
func (h *Handle) Restart(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.closeLocked()
	return h.startLocked(ctx)
}

func (h *Handle) request(msg string) (string, error) {
	h.mu.RLock()
	sock := h.sock
	timeout := h.requestTimeout
	h.mu.RUnlock()
	if sock == nil {
		return "", fmt.Errorf("generator: handle not started")
	}
	if err := sock.SendRequest(msg); err != nil {
		return "", &bferrors.GeneratorProtocolError{Raw: msg, Err: err}
	}
	resp, err := sock.ReadResponse(timeout)
	if err != nil {
		return "", &bferrors.GeneratorTimeout{Op: msg, Timeout: timeout.String()}
	}
	return resp, nil
}

// Generate requests a fresh predicate.
func (h *Handle) Generate() (Triple, error) {
	resp, err := h.request("generate")
	if err != nil {
		return Triple{}, err
	}
	return parseTriple(resp, true)
}

// Mutate requests action applied to (rawAST, env).
func (h *Handle) Mutate(rawAST, env, action string) (Triple, error) {
	resp, err := h.request(fmt.Sprintf("mutate(%s,%s,%s)", rawAST, env, action))
	if err != nil {
		return Triple{}, err
	}
	return parseTriple(resp, false)
}

// parseTriple parses the three-line `Raw:`/`WD:`/`Env:` reply. unquoteWD
// controls whether the WD line's value has its outer single-quotes
// stripped (generate does; mutate's WD is taken literally, only its Raw
// is unquoted per §4.4).
func parseTriple(resp string, unquoteWD bool) (Triple, error) {
	lines := strings.Split(strings.TrimRight(resp, "\n"), "\n")
	var raw, wd, env string
	var sawRaw, sawWD, sawEnv bool
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "Raw: "):
			raw = strings.TrimPrefix(line, "Raw: ")
			sawRaw = true
		case strings.HasPrefix(line, "WD: "):
			wd = strings.TrimPrefix(line, "WD: ")
			sawWD = true
		case strings.HasPrefix(line, "Env: "):
			env = strings.TrimPrefix(line, "Env: ")
			sawEnv = true
		}
	}
	if !sawRaw || !sawWD || !sawEnv {
		return Triple{}, &bferrors.GeneratorProtocolError{Raw: resp, Err: fmt.Errorf("missing Raw/WD/Env line")}
	}
	raw = unquote(raw)
	if unquoteWD {
		wd = unquote(wd)
	}
	return Triple{WDPred: wd, RawAST: raw, Env: env}, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

// ListActions returns the ordered action names available for env.
func (h *Handle) ListActions(env string) ([]string, error) {
	resp, err := h.request(fmt.Sprintf("list_actions(%s)", env))
	if err != nil {
		return nil, err
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return nil, nil
	}
	return strings.Split(resp, ","), nil
}

// GetRandomState returns the generator's current RNG tuple.
func (h *Handle) GetRandomState() (RandomState, error) {
	resp, err := h.request("getrand")
	if err != nil {
		return RandomState{}, err
	}
	parts := strings.Split(strings.TrimSpace(resp), ",")
	if len(parts) != 4 {
		return RandomState{}, &bferrors.GeneratorProtocolError{Raw: resp, Err: fmt.Errorf("expected 4 comma-separated integers")}
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return RandomState{}, &bferrors.GeneratorProtocolError{Raw: resp, Err: err}
		}
		vals[i] = n
	}
	return RandomState{X: vals[0], Y: vals[1], Z: vals[2], B: vals[3]}, nil
}

// SetRandomState writes a setrand(...) request.
func (h *Handle) SetRandomState(s RandomState) error {
	_, err := h.request(fmt.Sprintf("setrand(%d,%d,%d,%d)", s.X, s.Y, s.Z, s.B))
	return err
}

// InitRandomState picks a uniformly random admissible tuple, applies it,
// and returns it.
func (h *Handle) InitRandomState() (RandomState, error) {
	s := RandomState{
		X: 1 + rand.Intn(xMax),
		Y: 1 + rand.Intn(yMax),
		Z: 1 + rand.Intn(zMax),
		B: 1 + rand.Intn(bMax),
	}
	if err := h.SetRandomState(s); err != nil {
		return RandomState{}, err
	}
	return s, nil
}
