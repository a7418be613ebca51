// Command bfuzz-replay re-solves every predicate recorded in a bfuzz CSV
// output file against the configured solvers, confirming a recorded
// margin still reproduces.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bfuzz/bfuzz/internal/bflog"
	"github.com/bfuzz/bfuzz/internal/config"
	"github.com/bfuzz/bfuzz/internal/solver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bfuzz-replay <csv-path> <config-path>",
		Short: "Re-solve every row of a bfuzz CSV against the configured solvers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1])
		},
	}
}

func run(csvPath, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("bfuzz-replay: %w", err)
	}
	if err := bflog.Init(false); err != nil {
		return fmt.Errorf("bfuzz-replay: %w", err)
	}
	defer bflog.Sync()

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("bfuzz-replay: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("bfuzz-replay: read header: %w", err)
	}
	predCol, rawCol := -1, -1
	for i, h := range header {
		switch h {
		case "pred":
			predCol = i
		case "raw_ast":
			rawCol = i
		}
	}
	if predCol < 0 || rawCol < 0 {
		return fmt.Errorf("bfuzz-replay: csv missing pred/raw_ast columns")
	}

	allIDs := append(append([]string{}, cfg.Fuzzer.Targets...), cfg.Fuzzer.References...)
	handles := make(map[string]*solver.Handle, len(allIDs))
	for _, id := range allIDs {
		sc := cfg.Solvers[id]
		handles[id] = solver.New(id, solver.Config{
			Path:          sc.Path,
			BaseSolver:    string(sc.BaseSolver),
			PrologCall:    sc.PrologCall,
			CallResultVar: sc.CallResultVar,
			CallTimeVar:   sc.CallTimeVar,
			Timeout:       sc.Timeout(),
			PenaltyFactor: sc.PenaltyFactor,
			ParserPath:    sc.ParserPath,
			InterruptBin:  sc.InterruptBin,
		})
	}

	ctx := context.Background()
	for id, h := range handles {
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("bfuzz-replay: start solver %s: %w", id, err)
		}
		defer h.Close()
	}

	log := bflog.For(bflog.CategorySolver)
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		pred := row[predCol]
		for id, h := range handles {
			reply, err := h.Solve(pred, 1)
			if err != nil {
				log.Warnw("replay solve failed", "solver", id, "pred", pred, "err", err)
				continue
			}
			log.Infow("replay result", "solver", id, "pred", pred, "answer", reply.Answer, "info", reply.Info, "msec", reply.Msec)
		}
	}
	return nil
}
