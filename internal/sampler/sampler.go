// Package sampler reports free space and the backing block device for a
// single mount point.
package sampler

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Stat is a single space measurement, as spec.md §2.2 describes: one call
// returns (total_bytes, free_bytes, backing_device_name).
type Stat struct {
	TotalBytes    uint64
	FreeBytes     uint64
	BackingDevice string
}

// FreeGB truncates FreeBytes to whole gigabytes, as spec.md §4.2 requires.
func (s Stat) FreeGB() int {
	return int(s.FreeBytes / (1 << 30))
}

// TotalGB truncates TotalBytes to whole gigabytes.
func (s Stat) TotalGB() int {
	return int(s.TotalBytes / (1 << 30))
}

// Sample measures free space on mount and resolves its backing device.
// It returns an error if the mount point is not accessible; callers treat
// this as transient (spec.md §4.2/§7: sleep 60s and retry).
func Sample(mount string) (Stat, error) {
	stat, err := statfs(mount)
	if err != nil {
		return Stat{}, fmt.Errorf("sampling %s: %w", mount, err)
	}

	device, err := backingDevice(mount)
	if err != nil {
		device = ""
	}
	stat.BackingDevice = device
	return stat, nil
}

// backingDevice resolves the mount point to a /dev entry by scanning
// /proc/mounts for the longest matching mount-point prefix, then strips
// the leading "/dev/" and any trailing partition suffix.
func backingDevice(mount string) (string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", fmt.Errorf("reading /proc/mounts: %w", err)
	}
	defer f.Close()

	mount = strings.TrimRight(mount, "/")
	if mount == "" {
		mount = "/"
	}

	best := ""
	bestDevice := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		device, mp := fields[0], strings.TrimRight(fields[1], "/")
		if mp == "" {
			mp = "/"
		}
		if mount == mp || strings.HasPrefix(mount+"/", mp+"/") {
			if len(mp) >= len(best) {
				best = mp
				bestDevice = device
			}
		}
	}
	if bestDevice == "" {
		return "", fmt.Errorf("no mount entry found for %s", mount)
	}
	return stripPartitionSuffix(strings.TrimPrefix(bestDevice, "/dev/")), nil
}

var (
	nvmePartition = regexp.MustCompile(`^(nvme\d+n\d+)p\d+$`)
	mmcPartition  = regexp.MustCompile(`^(mmcblk\d+)p\d+$`)
	simplePartition = regexp.MustCompile(`^([a-zA-Z]+)\d+$`)
)

// stripPartitionSuffix reduces a partition device name to its backing
// whole-disk device, per spec.md §2.2 ("stripping /dev/ and any trailing
// partition suffix, including pN for NVMe").
func stripPartitionSuffix(name string) string {
	if m := nvmePartition.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if m := mmcPartition.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if m := simplePartition.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}
