// Package node reports local resource capacity for the monitoring
// server's /status endpoint.
package node

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Capacity summarizes the node's resource envelope as reported to
// /api/v1/status.
type Capacity struct {
	CPUCores      int
	MemoryTotalKB int64
	Slots         int
}

// LocalCapacity reads runtime.NumCPU() and /proc/meminfo, combining
// them with the configured slot count. On non-Linux platforms or any
// read failure, MemoryTotalKB is left at zero rather than failing.
func LocalCapacity(configuredSlots int) Capacity {
	return Capacity{
		CPUCores:      runtime.NumCPU(),
		MemoryTotalKB: readMemTotalKB(),
		Slots:         configuredSlots,
	}
}

func readMemTotalKB() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
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
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb
	}
	return 0
}
