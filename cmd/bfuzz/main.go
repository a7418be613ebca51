// Command bfuzz runs the differential performance fuzzer against a set of
// configured solvers, driven by a single YAML configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bfuzz/bfuzz/internal/bflog"
	"github.com/bfuzz/bfuzz/internal/config"
	"github.com/bfuzz/bfuzz/internal/generator"
	"github.com/bfuzz/bfuzz/internal/search"
	"github.com/bfuzz/bfuzz/internal/solver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bfuzz <config-path>",
		Short: "Differential performance fuzzer for constraint solvers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}
	cmd.SilenceUsage = false
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("bfuzz: %w", err)
	}

	if err := bflog.Init(cfg.HasOption("json_logs")); err != nil {
		return fmt.Errorf("bfuzz: %w", err)
	}
	defer bflog.Sync()

	gen := generator.New(cfg.Fuzzer.Path, cfg.Fuzzer.Port)

	targets := make(map[string]*solver.Handle, len(cfg.Fuzzer.Targets))
	for _, id := range cfg.Fuzzer.Targets {
		targets[id] = solver.New(id, solverConfigFor(cfg, id))
	}
	references := make(map[string]*solver.Handle, len(cfg.Fuzzer.References))
	for _, id := range cfg.Fuzzer.References {
		references[id] = solver.New(id, solverConfigFor(cfg, id))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := search.StartAll(ctx, gen, targets, references); err != nil {
		return fmt.Errorf("bfuzz: %w", err)
	}
	defer gen.Close()
	for _, h := range targets {
		defer h.Close()
	}
	for _, h := range references {
		defer h.Close()
	}

	loop, err := search.NewLoop(cfg, gen, targets, references)
	if err != nil {
		return fmt.Errorf("bfuzz: %w", err)
	}
	defer loop.Close()

	return loop.Run(ctx)
}

func solverConfigFor(cfg *config.Config, id string) solver.Config {
	sc := cfg.Solvers[id]
	prefs := map[string]string{}
	for _, p := range sc.Preferences {
		var s string
		if p.Decode(&s) == nil && s != "" {
			prefs[s] = "true"
			continue
		}
		var m map[string]string
		if p.Decode(&m) == nil {
			for k, v := range m {
				prefs[k] = v
			}
		}
	}
	callOptions := ""
	var single string
	if sc.CallOptions.Decode(&single) == nil {
		callOptions = single
	} else {
		var list []string
		if sc.CallOptions.Decode(&list) == nil {
			callOptions = "[" + strings.Join(list, ", ") + "]"
		}
	}
	return solver.Config{
		Path:          sc.Path,
		BaseSolver:    string(sc.BaseSolver),
		Preferences:   prefs,
		PrologCall:    sc.PrologCall,
		CallOptions:   callOptions,
		CallResultVar: sc.CallResultVar,
		CallTimeVar:   sc.CallTimeVar,
		Timeout:       sc.Timeout(),
		PenaltyFactor: sc.PenaltyFactor,
		ParserPath:    sc.ParserPath,
		InterruptBin:  sc.InterruptBin,
	}
}
