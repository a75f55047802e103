package backend

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
)

// BenchConfig controls a throughput run: how many synthetic blocks to
// compile, how large each one is, and how many goroutines compile them
// concurrently.
type BenchConfig struct {
	NumWorkers    int
	NumBlocks     int
	InstsPerBlock int
	Seed          uint64
}

// BenchStats accumulates counters across a throughput run. Reads are
// safe at any time via atomic loads, mirroring the teacher's
// WorkerPool.Stats pattern.
type BenchStats struct {
	compiled     atomic.Int64
	failed       atomic.Int64
	bytesEmitted atomic.Int64
	completed    atomic.Int64
}

// Compiled, Failed, and BytesEmitted report the run's running totals.
func (s *BenchStats) Compiled() int64     { return s.compiled.Load() }
func (s *BenchStats) Failed() int64       { return s.failed.Load() }
func (s *BenchStats) BytesEmitted() int64 { return s.bytesEmitted.Load() }

// RunBench compiles cfg.NumBlocks independently-generated synthetic
// blocks across cfg.NumWorkers goroutines, reporting throughput every
// few seconds the way the teacher's search WorkerPool reports checks/s
// (pkg/search/worker.go RunTasks). Each block is generated by
// pkg/ir.Random with its own seed so workers never share mutable IR
// state (spec.md §4.1, no cross-block allocator state).
func (b *Backend) RunBench(cfg BenchConfig, verbose bool) *BenchStats {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	stats := &BenchStats{}
	blocks := make(chan *ir.Block, cfg.NumBlocks)
	for i := 0; i < cfg.NumBlocks; i++ {
		at := loc.New(uint32(i*4), false, false, 0)
		blocks <- ir.Random(at, cfg.InstsPerBlock, cfg.Seed+uint64(i))
	}
	close(blocks)

	done := make(chan struct{})
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				comp := stats.completed.Load()
				elapsed := time.Since(startTime)
				rate := float64(comp) / elapsed.Seconds()
				fmt.Printf("  [%s] %d/%d blocks | %d bytes emitted | %.0f blocks/s\n",
					elapsed.Round(time.Second), comp, cfg.NumBlocks, stats.BytesEmitted(), rate)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for block := range blocks {
				bd, err := b.Emit(block)
				if err != nil {
					stats.failed.Add(1)
					if verbose {
						fmt.Printf("  FAIL pc=%#x: %v\n", block.Location.PC(), err)
					}
					stats.completed.Add(1)
					continue
				}
				stats.compiled.Add(1)
				stats.bytesEmitted.Add(int64(bd.HostCodeSize))
				stats.completed.Add(1)
			}
		}()
	}
	wg.Wait()

	close(done)
	elapsed := time.Since(startTime)
	rate := float64(stats.completed.Load()) / elapsed.Seconds()
	fmt.Printf("  [%s] %d/%d blocks | %d bytes emitted | %.0f blocks/s avg | DONE\n",
		elapsed.Round(time.Second), stats.completed.Load(), cfg.NumBlocks, stats.BytesEmitted(), rate)

	return stats
}
