// Package bferrors defines the error taxonomy used across bfuzz's
// components so that internal/search can distinguish recoverable
// per-iteration failures from fatal ones via errors.As.
package bferrors

import "fmt"

// PredicateParseError means the B-parser rejected a generated or mutated
// predicate, or a solver's reply to it could not be parsed as a Term.
// Recoverable: the iteration is skipped.
type PredicateParseError struct {
	Predicate string
	Err       error
}

func (e *PredicateParseError) Error() string {
	return fmt.Sprintf("bferrors: parse predicate %q: %v", e.Predicate, e.Err)
}

func (e *PredicateParseError) Unwrap() error { return e.Err }

// SolverTimeout means a solver did not answer within its configured
// timeout. Recoverable: the solver is interrupted and restarted.
type SolverTimeout struct {
	SolverID string
	Timeout  string
}

func (e *SolverTimeout) Error() string {
	return fmt.Sprintf("bferrors: solver %q timed out after %s", e.SolverID, e.Timeout)
}

// GeneratorTimeout means the generator did not answer within its
// configured timeout. Recoverable: the generator is restarted.
type GeneratorTimeout struct {
	Op      string
	Timeout string
}

func (e *GeneratorTimeout) Error() string {
	return fmt.Sprintf("bferrors: generator op %q timed out after %s", e.Op, e.Timeout)
}

// GeneratorProtocolError means the generator sent a reply that could not
// be framed or parsed as a valid response. Fatal: the run aborts.
type GeneratorProtocolError struct {
	Raw string
	Err error
}

func (e *GeneratorProtocolError) Error() string {
	return fmt.Sprintf("bferrors: generator protocol error on %q: %v", e.Raw, e.Err)
}

func (e *GeneratorProtocolError) Unwrap() error { return e.Err }

// SolverStartupError means a solver's startup banner did not match the
// expected six-line form. Fatal: the run aborts.
type SolverStartupError struct {
	SolverID string
	Banner   string
}

func (e *SolverStartupError) Error() string {
	return fmt.Sprintf("bferrors: solver %q sent unexpected startup banner: %q", e.SolverID, e.Banner)
}

// InvalidReward means ReceiveReward was called with a reward outside
// {0,1}. Programmer error: fatal.
type InvalidReward struct {
	Reward int
}

func (e *InvalidReward) Error() string {
	return fmt.Sprintf("bferrors: invalid reward %d, must be 0 or 1", e.Reward)
}

// ConfigurationError means the config file was missing a required key,
// pointed at a nonexistent path, or otherwise failed validation. Fatal:
// the process exits before any subprocess is started.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bferrors: configuration error at %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("bferrors: configuration error at %q", e.Key)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
