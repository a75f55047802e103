package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/vexlabs/a32jit/pkg/backend"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "a32jit",
		Short: "ARM32-to-x86-64 recompiler backend — emit, cache, and benchmark host code",
	}

	// emit command
	var emitInsts int
	var emitSeed int64
	var emitPC uint32

	emitCmd := &cobra.Command{
		Use:   "emit",
		Short: "Compile one synthetic block and report the emitted host code size",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := backend.New()
			at := loc.New(emitPC, false, false, 0)
			block := ir.Random(at, emitInsts, uint64(emitSeed))

			bd, err := b.Emit(block)
			if err != nil {
				return fmt.Errorf("compile failed: %w", err)
			}

			fmt.Printf("Block at pc=%#x\n", block.Location.PC())
			fmt.Printf("  IR instructions: %d\n", len(block.Insts))
			fmt.Printf("  Host code bytes: %d\n", bd.HostCodeSize)
			fmt.Printf("  Block ID:        %d\n", bd.ID)
			return nil
		},
	}
	emitCmd.Flags().IntVar(&emitInsts, "insts", 16, "Number of IR instructions in the synthetic block")
	emitCmd.Flags().Int64Var(&emitSeed, "seed", 1, "Random seed for block generation")
	emitCmd.Flags().Uint32Var(&emitPC, "pc", 0, "Guest PC the block is located at")

	// cache stats command
	var statsBlocks int
	var statsInsts int
	var statsSeed int64

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect translation cache behavior",
	}
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Compile a batch of synthetic blocks and report cache occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := backend.New()
			for i := 0; i < statsBlocks; i++ {
				at := loc.New(uint32(i*4), false, false, 0)
				block := ir.Random(at, statsInsts, uint64(statsSeed)+uint64(i))
				if _, err := b.Emit(block); err != nil {
					return fmt.Errorf("compile failed at block %d: %w", i, err)
				}
			}

			blocks, pendingTargets, totalPatches := b.Cache.Stats()
			fmt.Printf("Compiled blocks:   %d\n", blocks)
			fmt.Printf("Pending targets:   %d\n", pendingTargets)
			fmt.Printf("Outstanding patches: %d\n", totalPatches)
			return nil
		},
	}
	statsCmd.Flags().IntVar(&statsBlocks, "blocks", 64, "Number of synthetic blocks to compile")
	statsCmd.Flags().IntVar(&statsInsts, "insts", 16, "IR instructions per block")
	statsCmd.Flags().Int64Var(&statsSeed, "seed", 1, "Random seed for block generation")
	cacheCmd.AddCommand(statsCmd)

	// bench command
	var benchWorkers int
	var benchBlocks int
	var benchInsts int
	var benchSeed int64
	var benchVerbose bool

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure synthetic-block compile throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("a32jit bench\n")
			fmt.Printf("  Blocks:  %d\n", benchBlocks)
			fmt.Printf("  Insts:   %d per block\n", benchInsts)
			fmt.Printf("  Workers: %d\n", resolvedWorkers(benchWorkers))
			fmt.Println()

			b := backend.New()
			cfg := backend.BenchConfig{
				NumWorkers:    benchWorkers,
				NumBlocks:     benchBlocks,
				InstsPerBlock: benchInsts,
				Seed:          uint64(benchSeed),
			}
			stats := b.RunBench(cfg, benchVerbose)

			fmt.Printf("\n%d compiled, %d failed, %d bytes emitted\n",
				stats.Compiled(), stats.Failed(), stats.BytesEmitted())
			if stats.Failed() > 0 {
				return fmt.Errorf("%d blocks failed to compile", stats.Failed())
			}
			return nil
		},
	}
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 0, "Number of workers (0 = NumCPU)")
	benchCmd.Flags().IntVar(&benchBlocks, "blocks", 10000, "Number of synthetic blocks to compile")
	benchCmd.Flags().IntVar(&benchInsts, "insts", 16, "IR instructions per block")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1, "Random seed for block generation")
	benchCmd.Flags().BoolVarP(&benchVerbose, "verbose", "v", false, "Print each compile failure")

	rootCmd.AddCommand(emitCmd, cacheCmd, benchCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolvedWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
