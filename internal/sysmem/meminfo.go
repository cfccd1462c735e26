// Package sysmem answers the two questions the chunk controller's
// memory-mirror admission check asks: how much physical memory exists,
// and how much of it is in use right now.
package sysmem

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// Info reports system memory statistics.
type Info interface {
	TotalPhysicalMB() (float64, error)
	UsedPercent() (float64, error)
}

// System is the real, gopsutil-backed Info implementation.
type System struct{}

var _ Info = System{}

func (System) TotalPhysicalMB() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("sysmem: read virtual memory stats: %w", err)
	}
	return float64(vm.Total) / (1024 * 1024), nil
}

func (System) UsedPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("sysmem: read virtual memory stats: %w", err)
	}
	return vm.UsedPercent, nil
}
