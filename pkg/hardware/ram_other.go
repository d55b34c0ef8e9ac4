//go:build !linux && !darwin && !windows

package hardware

// detectRAMBytes has no probe on this platform; callers see RAMBytes as 0,
// which only affects Metal's unified-memory VRAM estimate.
func detectRAMBytes() uint64 {
	return 0
}
