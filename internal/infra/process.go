// Package infra implements infrastructure concerns (process sampling,
// session history storage, alarm playback).
package infra

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// ProcessSampler implements domain.ResourceSampler using gopsutil.
type ProcessSampler struct {
	pid int32
}

// NewProcessSampler creates a sampler for the current process.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{pid: int32(os.Getpid())}
}

// Sample returns the resident memory and CPU usage of the process.
func (s *ProcessSampler) Sample() (domain.ResourceSample, error) {
	p, err := process.NewProcess(s.pid)
	if err != nil {
		return domain.ResourceSample{}, fmt.Errorf("failed to open process %d: %w", s.pid, err)
	}

	mem, err := p.MemoryInfo()
	if err != nil {
		return domain.ResourceSample{}, fmt.Errorf("failed to read memory info: %w", err)
	}

	// CPU percent is best effort; some platforms refuse it without privileges.
	cpu, err := p.CPUPercent()
	if err != nil {
		cpu = 0
	}

	return domain.ResourceSample{RSSBytes: mem.RSS, CPUPercent: cpu}, nil
}

// Ensure ProcessSampler implements domain.ResourceSampler.
var _ domain.ResourceSampler = (*ProcessSampler)(nil)
