package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bfuzz/bfuzz/internal/bferrors"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bfuzz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
fuzzer:
  path: /usr/local/bin/generator
  targets: [kodkod]
  references: [prob]
solvers:
  kodkod:
    path: /usr/local/bin/kodkod
  prob:
    path: /usr/local/bin/probcli
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultCSVPath, cfg.Fuzzer.CSV)
	require.Equal(t, BaseSolverPROB, cfg.Solvers["kodkod"].BaseSolver)
	require.Equal(t, defaultPrologCallTmpl, cfg.Solvers["prob"].PrologCall)
	require.Equal(t, "Res", cfg.Solvers["prob"].CallResultVar)
	require.Equal(t, "Msec", cfg.Solvers["prob"].CallTimeVar)
}

func TestLoadExpandsEnv(t *testing.T) {
	require.NoError(t, os.Setenv("BFUZZ_TEST_PATH", "/opt/generator"))
	defer os.Unsetenv("BFUZZ_TEST_PATH")

	path := writeTempConfig(t, `
fuzzer:
  path: ${BFUZZ_TEST_PATH}
  targets: [kodkod]
  references: [prob]
solvers:
  kodkod:
    path: /usr/local/bin/kodkod
  prob:
    path: /usr/local/bin/probcli
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/generator", cfg.Fuzzer.Path)
}

func TestLoadMissingRequiredKey(t *testing.T) {
	path := writeTempConfig(t, `
fuzzer:
  targets: [kodkod]
  references: [prob]
solvers:
  kodkod:
    path: /usr/local/bin/kodkod
  prob:
    path: /usr/local/bin/probcli
`)
	_, err := Load(path)
	var cerr *bferrors.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "fuzzer.path", cerr.Key)
}

func TestLoadUnknownSolverID(t *testing.T) {
	path := writeTempConfig(t, `
fuzzer:
  path: /usr/local/bin/generator
  targets: [missing]
  references: [prob]
solvers:
  prob:
    path: /usr/local/bin/probcli
`)
	_, err := Load(path)
	var cerr *bferrors.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "solvers.missing", cerr.Key)
}

func TestHasOptionAndArg(t *testing.T) {
	cfg := &Config{Fuzzer: FuzzerConfig{Options: []string{"samp_size(10)", "solutions_only"}}}
	require.True(t, cfg.HasOption("samp_size"))
	require.True(t, cfg.HasOption("solutions_only"))
	require.False(t, cfg.HasOption("min_one_solution"))
	arg, ok := cfg.OptionArg("samp_size")
	require.True(t, ok)
	require.Equal(t, "10", arg)
}

func TestLoadAppliesSolverDefaults(t *testing.T) {
	path := writeTempConfig(t, `
fuzzer:
  path: /usr/local/bin/generator
  targets: [kodkod]
  references: [prob]
solvers:
  kodkod:
    path: /usr/local/bin/kodkod
  prob:
    path: /usr/local/bin/probcli
    timeout_ms: 5000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, cfg.Solvers["kodkod"].Timeout())
	require.Equal(t, 5000*time.Millisecond, cfg.Solvers["prob"].Timeout())
	require.Equal(t, defaultPenaltyFactor, cfg.Solvers["kodkod"].PenaltyFactor)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var cerr *bferrors.ConfigurationError
	require.True(t, errors.As(err, &cerr))
}
