//go:build darwin

package hardware

import "golang.org/x/sys/unix"

// detectRAMBytes reads hw.memsize via sysctl.
func detectRAMBytes() uint64 {
	v, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return v
}
