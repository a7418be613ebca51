// Package config loads and validates the YAML configuration that hands
// SolverHandle, GeneratorHandle, and SearchLoop their settings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bfuzz/bfuzz/internal/bferrors"
)

// BaseSolver enumerates the recognized solver backend kinds.
type BaseSolver string

const (
	BaseSolverPROB   BaseSolver = "PROB"
	BaseSolverKODKOD BaseSolver = "KODKOD"
	BaseSolverZ3     BaseSolver = "Z3"
	BaseSolverZ3AXM  BaseSolver = "Z3AXM"
	BaseSolverZ3CNS  BaseSolver = "Z3CNS"
	BaseSolverCDCLT  BaseSolver = "CDCLT"
)

// FuzzerConfig is the top-level "fuzzer" YAML key.
type FuzzerConfig struct {
	Path       string   `yaml:"path"`
	Options    []string `yaml:"options"`
	Port       int      `yaml:"port"`
	Targets    []string `yaml:"targets"`
	References []string `yaml:"references"`
	CSV        string   `yaml:"csv"`
}

// SolverConfig is one entry under the top-level "solvers" map, keyed by
// solver id.
type SolverConfig struct {
	Path          string      `yaml:"path"`
	BaseSolver    BaseSolver  `yaml:"base_solver"`
	Preferences   []yaml.Node `yaml:"preferences"`
	PrologCall    string      `yaml:"prolog_call"`
	CallOptions   yaml.Node   `yaml:"call_options"`
	CallResultVar string      `yaml:"call_result_var"`
	CallTimeVar   string      `yaml:"call_time_var"`

	ParserPath    string  `yaml:"parser_path"`
	InterruptBin  string  `yaml:"interrupt_bin"`
	TimeoutMS     int     `yaml:"timeout_ms"`
	PenaltyFactor float64 `yaml:"penalty_factor"`
}

// Timeout returns the solver's configured timeout, falling back to the
// package default when timeout_ms is unset.
func (sc SolverConfig) Timeout() time.Duration {
	if sc.TimeoutMS <= 0 {
		return defaultTimeoutMS * time.Millisecond
	}
	return time.Duration(sc.TimeoutMS) * time.Millisecond
}

// Config is the fully decoded, defaulted, and validated configuration
// handed to the orchestrator.
type Config struct {
	Fuzzer  FuzzerConfig            `yaml:"fuzzer"`
	Solvers map[string]SolverConfig `yaml:"solvers"`

	// Path is the file Load read this Config from. It is not itself a
	// YAML field; Load stamps it after a successful parse.
	Path string `yaml:"-"`
}

const (
	defaultCSVPath          = "results.csv"
	defaultBaseSolver       = BaseSolverPROB
	defaultPrologCallTmpl   = "cbc_timed_solve_with_opts($base,$options,$pred,_,Res,Msec)"
	defaultCallResultVar    = "Res"
	defaultCallTimeVar      = "Msec"
	defaultTimeoutMS        = 2500
	defaultPenaltyFactor    = 2.0
)

// Load reads path as YAML, expands ${VAR}/$VAR environment references in
// every field, applies defaults, and validates required keys. It returns
// a *bferrors.ConfigurationError wrapped error on any failure.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &bferrors.ConfigurationError{Key: path, Err: err}
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, &bferrors.ConfigurationError{Key: path, Err: err}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Path = path
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Fuzzer.CSV == "" {
		c.Fuzzer.CSV = defaultCSVPath
	}
	for id, sc := range c.Solvers {
		if sc.BaseSolver == "" {
			sc.BaseSolver = defaultBaseSolver
		}
		if sc.PrologCall == "" {
			sc.PrologCall = defaultPrologCallTmpl
		}
		if sc.CallResultVar == "" {
			sc.CallResultVar = defaultCallResultVar
		}
		if sc.CallTimeVar == "" {
			sc.CallTimeVar = defaultCallTimeVar
		}
		if sc.PenaltyFactor <= 0 {
			sc.PenaltyFactor = defaultPenaltyFactor
		}
		c.Solvers[id] = sc
	}
}

// Validate checks that required keys are present and internally
// consistent: fuzzer.path is set unless fuzzer.port attaches to an
// existing generator, every referenced solver id in targets/references
// exists under solvers, and every solver's base_solver is recognized.
func (c *Config) Validate() error {
	if c.Fuzzer.Path == "" && c.Fuzzer.Port == 0 {
		return &bferrors.ConfigurationError{Key: "fuzzer.path"}
	}
	if len(c.Fuzzer.Targets) == 0 {
		return &bferrors.ConfigurationError{Key: "fuzzer.targets"}
	}
	if len(c.Fuzzer.References) == 0 {
		return &bferrors.ConfigurationError{Key: "fuzzer.references"}
	}
	for _, id := range append(append([]string{}, c.Fuzzer.Targets...), c.Fuzzer.References...) {
		sc, ok := c.Solvers[id]
		if !ok {
			return &bferrors.ConfigurationError{Key: fmt.Sprintf("solvers.%s", id)}
		}
		if sc.Path == "" {
			return &bferrors.ConfigurationError{Key: fmt.Sprintf("solvers.%s.path", id)}
		}
		if !validBaseSolver(sc.BaseSolver) {
			return &bferrors.ConfigurationError{Key: fmt.Sprintf("solvers.%s.base_solver", id)}
		}
	}
	return nil
}

func validBaseSolver(b BaseSolver) bool {
	switch b {
	case BaseSolverPROB, BaseSolverKODKOD, BaseSolverZ3, BaseSolverZ3AXM, BaseSolverZ3CNS, BaseSolverCDCLT:
		return true
	default:
		return false
	}
}

// HasOption reports whether fuzzer.options contains name, optionally
// with a parenthesized argument (e.g. "samp_size(10)" matches
// HasOption("samp_size")).
func (c *Config) HasOption(name string) bool {
	for _, o := range c.Fuzzer.Options {
		if o == name || strings.HasPrefix(o, name+"(") {
			return true
		}
	}
	return false
}

// OptionArg returns the parenthesized argument of option name, e.g.
// OptionArg("samp_size") returns "10" for "samp_size(10)".
func (c *Config) OptionArg(name string) (string, bool) {
	prefix := name + "("
	for _, o := range c.Fuzzer.Options {
		if strings.HasPrefix(o, prefix) && strings.HasSuffix(o, ")") {
			return o[len(prefix) : len(o)-1], true
		}
	}
	return "", false
}
