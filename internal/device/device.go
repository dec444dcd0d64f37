// Package device reports the compute device a run executes on. All math in
// this project is pure Go, so the device is always the host CPU; the report
// records what the CPU offers so runs are comparable across machines.
package device

import (
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Device describes where tensor math executes.
type Device struct {
	Name     string // e.g. "cpu (AMD Ryzen 9 5950X, avx2)"
	ForceCPU bool
}

// Select returns the device for this run. forceCPU skips any accelerator
// probing; with no accelerator backend compiled in the result is the same
// either way, but the flag is carried through so it shows up in the logs.
func Select(forceCPU bool) Device {
	brand := strings.TrimSpace(cpuid.CPU.BrandName)
	if brand == "" {
		brand = "unknown cpu"
	}

	simd := "scalar"
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ):
		simd = "avx512"
	case cpuid.CPU.Supports(cpuid.AVX2):
		simd = "avx2"
	case cpuid.CPU.Supports(cpuid.AVX):
		simd = "avx"
	case cpuid.CPU.Supports(cpuid.SSE4):
		simd = "sse4"
	}

	return Device{
		Name:     "cpu (" + brand + ", " + simd + ")",
		ForceCPU: forceCPU,
	}
}
