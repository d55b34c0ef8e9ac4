// Package hardware detects the host's GPU backend, VRAM, RAM, and CPU
// feature set once at daemon startup. Detection is probe-based and never
// fatal: any failure degrades to zero/None rather than aborting, since the
// daemon's quality floor (pkg/selector) is what decides whether degraded
// hardware is acceptable, not this package.
package hardware

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/cpu"
)

// CPUFeatures records the x86 feature flags the InferenceEngine's backend
// selection cares about. Both are always false on non-x86 architectures.
type CPUFeatures struct {
	AVX2    bool
	AVX512F bool
}

// Profile is an immutable snapshot of the host's inference-relevant
// hardware, produced once at startup.
type Profile struct {
	GPUBackend  Backend
	VRAMBytes   uint64
	RAMBytes    uint64
	CPUFeatures CPUFeatures
}

// cudaLibraryPaths are well-known locations for the CUDA driver library.
// Platform-specific; probed in order, first hit wins.
var cudaLibraryPaths = map[string][]string{
	"linux": {
		"/usr/lib/x86_64-linux-gnu/libcuda.so.1",
		"/usr/lib/x86_64-linux-gnu/libcuda.so",
		"/usr/lib/aarch64-linux-gnu/libcuda.so.1",
		"/usr/local/cuda/lib64/libcuda.so",
	},
	"windows": {
		`C:\Windows\System32\nvcuda.dll`,
	},
}

// vulkanLoaderPaths are well-known locations for the Vulkan loader.
var vulkanLoaderPaths = map[string][]string{
	"linux": {
		"/usr/lib/x86_64-linux-gnu/libvulkan.so.1",
		"/usr/lib/aarch64-linux-gnu/libvulkan.so.1",
		"/usr/lib/libvulkan.so.1",
	},
	"darwin": {
		"/usr/local/lib/libvulkan.dylib",
		"/opt/homebrew/lib/libvulkan.dylib",
		"/usr/local/lib/libMoltenVK.dylib",
	},
	"windows": {
		`C:\Windows\System32\vulkan-1.dll`,
	},
}

// Detect probes the host once and returns an immutable Profile. It never
// returns an error: every probe degrades to its zero value on failure.
func Detect() Profile {
	ram := detectRAMBytes()

	backend, vram := detectGPU(ram)

	return Profile{
		GPUBackend:  backend,
		VRAMBytes:   vram,
		RAMBytes:    ram,
		CPUFeatures: detectCPUFeatures(),
	}
}

// detectGPU applies the fixed CUDA > Metal > Vulkan > None priority order.
func detectGPU(ramBytes uint64) (Backend, uint64) {
	if cudaPresent() {
		if vram, ok := cudaVRAMBytes(); ok {
			return BackendCuda, vram
		}
		return BackendCuda, 0
	}
	if metalPresent() {
		// Unified memory: VRAM is reported as 75% of system RAM.
		return BackendMetal, (ramBytes * 3) / 4
	}
	if vulkanPresent() {
		// VRAM is unknown for Vulkan; reported as 0 per spec.
		return BackendVulkan, 0
	}
	return BackendNone, 0
}

func cudaPresent() bool {
	return anyPathExists(cudaLibraryPaths[runtime.GOOS])
}

func vulkanPresent() bool {
	return anyPathExists(vulkanLoaderPaths[runtime.GOOS])
}

func metalPresent() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func anyPathExists(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// cudaVRAMBytes invokes nvidia-smi and parses the first line of output as
// MiB. Any failure (binary missing, non-numeric output) yields ok=false.
func cudaVRAMBytes() (uint64, bool) {
	out, err := exec.Command("nvidia-smi", "--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, false
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return 0, false
	}
	line := strings.TrimSpace(scanner.Text())
	mib, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, false
	}
	return mib * 1024 * 1024, true
}

// detectCPUFeatures reports AVX2/AVX-512 on x86, false/false everywhere else.
func detectCPUFeatures() CPUFeatures {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		return CPUFeatures{}
	}
	return CPUFeatures{
		AVX2:    cpu.X86.HasAVX2,
		AVX512F: cpu.X86.HasAVX512F,
	}
}
