// Package device picks where the model runs.
package device

import (
	"log"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
)

const (
	Auto = "auto"
	CPU  = "cpu"
	CUDA = "cuda"
)

type Device struct {
	Name        string
	Accelerator bool
	Threads     int
	CPU         string
	Features    []string
}

func (d Device) String() string {
	return d.Name + " (" + d.CPU + ")"
}

// Select resolves name to a device. Accelerator requests fall back to the
// CPU since no accelerator backend is compiled in.
func Select(name string) (Device, error) {
	switch strings.ToLower(name) {
	case "", Auto, CPU:
	case CUDA, "gpu":
		log.Println("device",
			"requested", name,
			"fallback", CPU)
	default:
		return Device{}, errors.Errorf("device: unknown device %q", name)
	}
	return Device{
		Name:     CPU,
		Threads:  threads(),
		CPU:      cpuName(),
		Features: features(),
	}, nil
}

func threads() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func cpuName() string {
	if cpuid.CPU.BrandName != "" {
		return cpuid.CPU.BrandName
	}
	return runtime.GOARCH
}

func features() []string {
	var result []string
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"SSE4.2", cpuid.SSE42},
		{"AVX", cpuid.AVX},
		{"AVX2", cpuid.AVX2},
		{"FMA3", cpuid.FMA3},
		{"AVX512F", cpuid.AVX512F},
		{"ASIMD", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			result = append(result, f.name)
		}
	}
	return result
}
