package backend

import "testing"

func TestRunBenchCompilesAllBlocks(t *testing.T) {
	b := New()
	cfg := BenchConfig{
		NumWorkers:    4,
		NumBlocks:     50,
		InstsPerBlock: 8,
		Seed:          42,
	}

	stats := b.RunBench(cfg, false)

	if got := stats.Compiled() + stats.Failed(); got != int64(cfg.NumBlocks) {
		t.Errorf("compiled+failed = %d, want %d", got, cfg.NumBlocks)
	}
	if stats.Failed() != 0 {
		t.Errorf("Failed() = %d, want 0 for well-formed synthetic blocks", stats.Failed())
	}
	if stats.BytesEmitted() <= 0 {
		t.Errorf("BytesEmitted() = %d, want > 0", stats.BytesEmitted())
	}
}

func TestRunBenchDefaultsWorkerCountFromNumCPU(t *testing.T) {
	b := New()
	cfg := BenchConfig{
		NumWorkers:    0,
		NumBlocks:     10,
		InstsPerBlock: 4,
		Seed:          1,
	}

	stats := b.RunBench(cfg, false)
	if stats.Compiled() != int64(cfg.NumBlocks) {
		t.Errorf("Compiled() = %d, want %d", stats.Compiled(), cfg.NumBlocks)
	}
}
