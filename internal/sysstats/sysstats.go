// Package sysstats samples resource usage of the running process for the
// operator stats endpoint.
package sysstats

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is one sample of process resource usage.
type Snapshot struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

type Sampler struct {
	proc *process.Process
}

// NewSampler returns a sampler for the current process.
func NewSampler() (*Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	return &Sampler{proc: p}, nil
}

// Sample reads current memory, CPU and thread counts.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, error) {
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := s.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cpu percent: %w", err)
	}
	threads, err := s.proc.NumThreadsWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("threads: %w", err)
	}
	return Snapshot{
		PID:        s.proc.Pid,
		RSSBytes:   mem.RSS,
		CPUPercent: cpu,
		Threads:    threads,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
