package collectors

import (
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/blockdevice"
)

const sectorSize = 512

// CPUTimes holds cumulative CPU seconds across all cores
type CPUTimes struct {
	Busy  float64
	Total float64
}

// MemoryInfo holds host memory in bytes
type MemoryInfo struct {
	Total     uint64
	Free      uint64
	Available uint64
}

// Used is total minus available, falling back to free on old kernels
func (m MemoryInfo) Used() uint64 {
	avail := m.Available
	if avail == 0 {
		avail = m.Free
	}
	if avail > m.Total {
		return 0
	}
	return m.Total - avail
}

// DiskCounters holds cumulative bytes moved by whole block devices
type DiskCounters struct {
	ReadBytes    uint64
	WrittenBytes uint64
}

// ProcHostStats reads host counters from procfs
type ProcHostStats struct {
	proc  procfs.FS
	block blockdevice.FS
}

// NewProcHostStats opens procfs and sysfs at their default mount points
func NewProcHostStats() (*ProcHostStats, error) {
	proc, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	block, err := blockdevice.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open blockdevice fs: %w", err)
	}
	return &ProcHostStats{proc: proc, block: block}, nil
}

// CPUTimes reads the aggregate cpu line of /proc/stat
func (p *ProcHostStats) CPUTimes() (CPUTimes, error) {
	stat, err := p.proc.Stat()
	if err != nil {
		return CPUTimes{}, fmt.Errorf("read /proc/stat: %w", err)
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return CPUTimes{Busy: busy, Total: busy + idle}, nil
}

// Memory reads /proc/meminfo
func (p *ProcHostStats) Memory() (MemoryInfo, error) {
	mi, err := p.proc.Meminfo()
	if err != nil {
		return MemoryInfo{}, fmt.Errorf("read /proc/meminfo: %w", err)
	}
	if mi.MemTotal == nil {
		return MemoryInfo{}, fmt.Errorf("read /proc/meminfo: MemTotal missing")
	}
	return MemoryInfo{
		Total:     kib(mi.MemTotal),
		Free:      kib(mi.MemFree),
		Available: kib(mi.MemAvailable),
	}, nil
}

// DiskBytes sums sectors read and written over whole disks in /proc/diskstats
func (p *ProcHostStats) DiskBytes() (DiskCounters, error) {
	stats, err := p.block.ProcDiskstats()
	if err != nil {
		return DiskCounters{}, fmt.Errorf("read /proc/diskstats: %w", err)
	}
	var out DiskCounters
	for _, d := range stats {
		if !isWholeDisk(d.DeviceName) {
			continue
		}
		out.ReadBytes += d.ReadSectors * sectorSize
		out.WrittenBytes += d.WriteSectors * sectorSize
	}
	return out, nil
}

func kib(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v * 1024
}

// isWholeDisk keeps physical and device-mapper disks and drops partitions,
// loop and ram devices so bytes are not counted twice.
func isWholeDisk(name string) bool {
	switch {
	case strings.HasPrefix(name, "loop"), strings.HasPrefix(name, "ram"), strings.HasPrefix(name, "zram"):
		return false
	case strings.HasPrefix(name, "dm-"):
		return true
	case strings.HasPrefix(name, "nvme"), strings.HasPrefix(name, "mmcblk"):
		// nvme0n1 is a disk, nvme0n1p1 a partition
		return !strings.Contains(name[4:], "p")
	}
	for _, prefix := range []string{"sd", "vd", "xvd", "hd"} {
		if strings.HasPrefix(name, prefix) {
			suffix := name[len(prefix):]
			return len(suffix) > 0 && !strings.ContainsAny(suffix[len(suffix)-1:], "0123456789")
		}
	}
	return false
}
