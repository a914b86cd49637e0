//go:build linux

package collector

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/7c/centralmon/internal/tzname"
	"github.com/7c/centralmon/internal/wire"
)

// linuxCollector implements Collector on top of /proc, following back-end A
// of the sample collector design: numeric-named /proc entries for the
// process table, stat for the command name, statm for image and resident
// size, the file owner's
// uid mapped through the password database, and an external ps-style
// lookup for start time.
type linuxCollector struct{}

func newPlatformCollector() Collector { return linuxCollector{} }

func (linuxCollector) CollectSystem() (wire.SystemSample, error) {
	var s wire.SystemSample
	s.OS = "Linux"
	s.Release = kernelRelease()
	s.CPUs = numCPU()
	s.MHz = cpuMHz()

	pids := listPIDs()
	s.Procs = len(pids)

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		s.UptimeDays = int(info.Uptime) / 86400
		unit := uint64(info.Unit)
		if unit == 0 {
			unit = 1
		}
		s.MainTotal = uint64(info.Totalram) * unit / (1024 * 1024)
		s.MainUsed = s.MainTotal - uint64(info.Freeram)*unit/(1024*1024)
		s.SwapTotal = uint64(info.Totalswap) * unit / (1024 * 1024)
		s.SwapUsed = s.SwapTotal - uint64(info.Freeswap)*unit/(1024*1024)
	}

	snapshots := topCPUSnapshot()
	s.Top5 = top5LowestFirst(snapshots)
	s.CPUPercent = totalCPUPercent(snapshots, s.CPUs)

	s.Partitions = diskUsage()
	return s, nil
}

func (linuxCollector) CollectProcess(name string) (wire.ProcessSample, error) {
	p := wire.ProcessSample{Name: name}
	if name == "" {
		return p, nil
	}

	p.Owners = make(map[string]int)
	var earliestStart time.Time

	for _, pid := range listPIDs() {
		comm := readComm(pid)
		if comm != name {
			continue
		}

		p.Procs++

		if owner := ownerName(pid); owner != "" {
			p.Owners[owner]++
		}

		imageKB, residentKB := memSizes(pid)
		p.Image += imageKB
		p.Resident += residentKB
		if p.MinImage == 0 || imageKB < p.MinImage {
			p.MinImage = imageKB
		}
		if imageKB > p.MaxImage {
			p.MaxImage = imageKB
		}
		if p.MinResident == 0 || residentKB < p.MinResident {
			p.MinResident = residentKB
		}
		if residentKB > p.MaxResident {
			p.MaxResident = residentKB
		}

		if start := psStartTime(pid); !start.IsZero() {
			if earliestStart.IsZero() || start.Before(earliestStart) {
				earliestStart = start
			}
		}
	}

	if !earliestStart.IsZero() {
		local := earliestStart.In(tzname.Local())
		p.Start = local.Format("2006-01-02 15:04") + " " + tzname.Abbrev(local)
	}

	return p, nil
}

func listPIDs() []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if pid, err := strconv.Atoi(e.Name()); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids
}

func readComm(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return ""
	}
	stat := string(data)
	start := strings.IndexByte(stat, '(')
	end := strings.LastIndexByte(stat, ')')
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return stat[start+1 : end]
}

func memSizes(pid int) (imageKB, residentKB uint64) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, 0
	}
	pages := func(s string) uint64 {
		v, _ := strconv.ParseUint(s, 10, 64)
		return v
	}
	const pageKB = 4
	return pages(fields[0]) * pageKB, pages(fields[1]) * pageKB
}

func ownerName(pid int) string {
	var stat unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("/proc/%d", pid), &stat); err != nil {
		return ""
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(stat.Uid), 10))
	if err != nil {
		return ""
	}
	return u.Username
}

// psStartTime shells out to ps for the process start time, matching back-end
// A's "external ps-style lookup formatted as Mon D HH:MM:SS YYYY".
func psStartTime(pid int) time.Time {
	out, err := exec.Command("ps", "-o", "lstart=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse("Mon Jan  2 15:04:05 2006", strings.TrimSpace(string(out)))
	if err != nil {
		t, err = time.Parse("Mon Jan 2 15:04:05 2006", strings.TrimSpace(string(out)))
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

func kernelRelease() string {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uname.Release[:])
}

func cpuMHz() int {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "cpu MHz") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				f, _ := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
				return int(f)
			}
		}
	}
	return 0
}

// topCPUSnapshot shells out to ps for a top-style per-process CPU% reading,
// matching back-end A's "top-style command for per-process CPU".
func topCPUSnapshot() []cpuSnapshot {
	out, err := exec.Command("ps", "-eo", "comm,%cpu", "--no-headers").Output()
	if err != nil {
		return nil
	}
	var snapshots []cpuSnapshot
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pct, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			continue
		}
		name := strings.Join(fields[:len(fields)-1], " ")
		snapshots = append(snapshots, cpuSnapshot{name: name, percent: pct})
	}
	return snapshots
}

func diskUsage() map[string]int {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return nil
	}

	usage := make(map[string]int)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mount := fields[1]
		if strings.Contains(strings.ToLower(mount), "cdrom") {
			continue
		}
		if _, seen := usage[mount]; seen {
			continue
		}

		var stat unix.Statfs_t
		if err := unix.Statfs(mount, &stat); err != nil {
			continue
		}
		if stat.Blocks == 0 {
			continue
		}
		used := stat.Blocks - stat.Bfree
		usage[mount] = int(used * 100 / stat.Blocks)
	}
	return usage
}
