//go:build linux

package hardware

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// detectRAMBytes reads MemTotal from /proc/meminfo (given in kB), falling
// back to the sysinfo(2) syscall if /proc is unavailable.
func detectRAMBytes() uint64 {
	if kb, ok := readMemTotalKB("/proc/meminfo"); ok {
		return kb * 1024
	}
	return sysinfoRAMBytes()
}

func readMemTotalKB(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb, true
	}
	return 0, false
}

func sysinfoRAMBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
