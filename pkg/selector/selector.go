// Package selector implements the pure hardware+config to model-choice
// function: given a HardwareProfile and a small config fragment, it picks
// exactly one manifest entry and a validated backend, or fails fatally.
// Selection never touches disk or network — it is a function of its two
// inputs only.
package selector

import (
	"errors"
	"fmt"

	"github.com/tsukumogami/tsuku/pkg/hardware"
	"github.com/tsukumogami/tsuku/pkg/manifest"
)

const (
	gpuFloorBytes  uint64 = 8 << 30  // 8 GB minimum VRAM to run at all
	splitBoundary  uint64 = 14 << 30 // ≥14 GB selects the 14B variant
	sevenBModel           = "qwen2.5-7b-instruct-q4"
	fourteenBModel        = "qwen2.5-14b-instruct-q4"
)

// Config is the subset of daemon configuration ModelSelector consults.
// Both fields are optional; the zero value means "auto-select".
type Config struct {
	LocalModel   string
	LocalBackend string
}

// ModelSpec is the result of a successful selection: a fully resolved
// choice of model and backend, ready to hand to ModelManager.
type ModelSpec struct {
	Name         string
	Quantization string
	Backend      hardware.Backend
	SizeBytes    uint64
	SHA256       string
	DownloadURL  string
}

// InvalidConfigModel is raised when config.local_model names an entry not
// present in the manifest.
type InvalidConfigModel struct {
	Name string
}

func (e InvalidConfigModel) Error() string {
	return fmt.Sprintf("selector: unknown local_model %q", e.Name)
}

// InvalidConfigBackend is raised when config.local_backend does not parse,
// or parses to a backend the resolved model/hardware cannot satisfy.
type InvalidConfigBackend struct {
	Backend string
	Reason  string
}

func (e InvalidConfigBackend) Error() string {
	return fmt.Sprintf("selector: invalid local_backend %q: %s", e.Backend, e.Reason)
}

// ErrNoGpuDetected is returned by the auto-select path when HardwareProfiler
// found no GPU backend at all. The daemon refuses to run CPU-only.
var ErrNoGpuDetected = errors.New("selector: no GPU detected")

// InsufficientVram is raised by the auto-select path when a GPU is present
// but below the 8 GB quality floor.
type InsufficientVram struct {
	VRAMGB    float64
	MinimumGB float64
}

func (e InsufficientVram) Error() string {
	return fmt.Sprintf("selector: insufficient VRAM: have %.1f GB, need %.1f GB", e.VRAMGB, e.MinimumGB)
}

// Select is the pure (profile, config) -> ModelSpec|error function.
func Select(profile hardware.Profile, cfg Config) (ModelSpec, error) {
	if cfg.LocalModel != "" {
		return selectExplicit(profile, cfg)
	}
	return selectAuto(profile, cfg)
}

func selectExplicit(profile hardware.Profile, cfg Config) (ModelSpec, error) {
	entry, ok := manifest.Lookup(cfg.LocalModel)
	if !ok {
		return ModelSpec{}, InvalidConfigModel{Name: cfg.LocalModel}
	}

	backend, err := resolveBackend(profile.GPUBackend, cfg.LocalBackend)
	if err != nil {
		return ModelSpec{}, err
	}
	if !entry.Supports(backend) {
		return ModelSpec{}, InvalidConfigBackend{
			Backend: backend.String(),
			Reason:  fmt.Sprintf("%s does not support backend %s", cfg.LocalModel, backend),
		}
	}

	return toSpec(cfg.LocalModel, entry, backend), nil
}

func selectAuto(profile hardware.Profile, cfg Config) (ModelSpec, error) {
	if profile.GPUBackend == hardware.BackendNone {
		return ModelSpec{}, ErrNoGpuDetected
	}
	if profile.VRAMBytes < gpuFloorBytes {
		return ModelSpec{}, InsufficientVram{
			VRAMGB:    bytesToGB(profile.VRAMBytes),
			MinimumGB: bytesToGB(gpuFloorBytes),
		}
	}

	name := sevenBModel
	if profile.VRAMBytes >= splitBoundary {
		name = fourteenBModel
	}

	entry, ok := manifest.Lookup(name)
	if !ok {
		return ModelSpec{}, fmt.Errorf("selector: manifest missing built-in entry %q", name)
	}

	backend, err := resolveBackend(profile.GPUBackend, cfg.LocalBackend)
	if err != nil {
		return ModelSpec{}, err
	}
	if !entry.Supports(backend) {
		return ModelSpec{}, InvalidConfigBackend{
			Backend: backend.String(),
			Reason:  fmt.Sprintf("%s does not support backend %s", name, backend),
		}
	}

	return toSpec(name, entry, backend), nil
}

// resolveBackend validates an optional requested backend against the
// detected GPU backend. Vulkan may additionally run on a CUDA-capable
// device (the llama.cpp Vulkan backend works over any Vulkan-exposing
// GPU, including NVIDIA ones); every other combination must match exactly.
func resolveBackend(detected hardware.Backend, requested string) (hardware.Backend, error) {
	if requested == "" {
		return detected, nil
	}

	parsed, err := hardware.ParseBackend(requested)
	if err != nil {
		return hardware.BackendNone, InvalidConfigBackend{Backend: requested, Reason: "not a recognized backend"}
	}

	if parsed == detected {
		return parsed, nil
	}
	if parsed == hardware.BackendVulkan && detected == hardware.BackendCuda {
		return parsed, nil
	}

	return hardware.BackendNone, InvalidConfigBackend{
		Backend: requested,
		Reason:  fmt.Sprintf("detected hardware backend is %s", detected),
	}
}

func toSpec(name string, entry manifest.Entry, backend hardware.Backend) ModelSpec {
	return ModelSpec{
		Name:         name,
		Quantization: entry.Quantization,
		Backend:      backend,
		SizeBytes:    entry.SizeBytes,
		SHA256:       entry.SHA256,
		DownloadURL:  entry.DownloadURL,
	}
}

func bytesToGB(b uint64) float64 {
	return float64(b) / float64(1<<30)
}
