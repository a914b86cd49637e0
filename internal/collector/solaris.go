//go:build solaris

package collector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/7c/centralmon/internal/tzname"
	"github.com/7c/centralmon/internal/wire"
)

// psinfoRecord mirrors the fixed layout of /proc/<pid>/psinfo's leading
// fields (struct psinfo_t) needed here: process id, uid, size and rssize
// in KB, and process start time as a timeval. The remainder of the real
// struct (fname, psargs, and the trailing fields) is read separately
// since fname/psargs are fixed-width character arrays at known offsets.
type psinfoRecord struct {
	PID      int32
	_        int32 // pr_ppid
	_        int32 // pr_pgid
	_        int32 // pr_sid
	UID      int32
	_        int32 // pr_euid
	_        int32 // pr_gid
	_        int32 // pr_egid
	_        int64 // pr_addr
	Size     int64 // KB
	RSSize   int64 // KB
	_        int64 // pr_pad1
	_        int32 // pr_ttydev
	_        int32 // pad
	_        int64 // pr_pctcpu / pr_pctmem packed (platform specific, unused)
	StartSec int64
	StartNS  int64
}

const psinfoFnameOffset = 0x108 // offset of pr_fname within psinfo_t on 64-bit Solaris
const psinfoFnameLen = 16

// solarisCollector implements Collector on top of /proc/<pid>/psinfo,
// following back-end B of the sample collector design: a binary psinfo
// record per process directory, plus kernel statistics channels and swap
// control table calls for system-level data.
type solarisCollector struct{}

func newPlatformCollector() Collector { return solarisCollector{} }

func (solarisCollector) CollectSystem() (wire.SystemSample, error) {
	var s wire.SystemSample
	s.OS = "SunOS"
	s.Release = kstatString("unix", "0", "system_misc", "release")
	s.CPUs = numCPU()
	s.MHz = kstatInt("cpu_info", "0", "cpu_info0", "clock_MHz")

	pids := listPSInfoPIDs()
	s.Procs = len(pids)
	s.UptimeDays = kstatUptimeDays()

	mainTotalKB, mainUsedKB := kstatMainMemory()
	s.MainTotal = mainTotalKB / 1024
	s.MainUsed = mainUsedKB / 1024
	s.SwapTotal, s.SwapUsed = swapTotals()

	snapshots := make([]cpuSnapshot, 0, len(pids))
	for _, pid := range pids {
		rec, fname, ok := readPSInfo(pid)
		if !ok {
			continue
		}
		pct := kstatProcessPctCPU(pid)
		snapshots = append(snapshots, cpuSnapshot{name: fname, percent: pct})
		_ = rec
	}
	s.Top5 = top5LowestFirst(snapshots)
	s.CPUPercent = totalCPUPercent(snapshots, s.CPUs)

	s.Partitions = diskUsage()
	return s, nil
}

func (solarisCollector) CollectProcess(name string) (wire.ProcessSample, error) {
	p := wire.ProcessSample{Name: name}
	if name == "" {
		return p, nil
	}
	p.Owners = make(map[string]int)

	var earliestStart time.Time
	for _, pid := range listPSInfoPIDs() {
		rec, fname, ok := readPSInfo(pid)
		if !ok || fname != name {
			continue
		}

		p.Procs++
		if u, err := user.LookupId(strconv.Itoa(int(rec.UID))); err == nil {
			p.Owners[u.Username]++
		}

		imageKB := uint64(rec.Size)
		residentKB := uint64(rec.RSSize)
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

		start := time.Unix(rec.StartSec, rec.StartNS)
		if earliestStart.IsZero() || start.Before(earliestStart) {
			earliestStart = start
		}
	}

	if !earliestStart.IsZero() {
		local := earliestStart.In(tzname.Local())
		p.Start = local.Format("2006-01-02 15:04") + " " + tzname.Abbrev(local)
	}
	return p, nil
}

func listPSInfoPIDs() []int {
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

// readPSInfo reads and decodes /proc/<pid>/psinfo, returning the fixed
// numeric fields and the NUL-terminated fname string.
func readPSInfo(pid int) (psinfoRecord, string, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/psinfo", pid))
	if err != nil || len(data) < psinfoFnameOffset+psinfoFnameLen {
		return psinfoRecord{}, "", false
	}

	var rec psinfoRecord
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &rec); err != nil {
		return psinfoRecord{}, "", false
	}

	fname := string(bytes.TrimRight(data[psinfoFnameOffset:psinfoFnameOffset+psinfoFnameLen], "\x00"))
	return rec, fname, true
}

// kstatString, kstatInt, kstatUptimeDays, kstatMainMemory and
// kstatProcessPctCPU shell out to the kstat(1) command as an external
// gateway to the kernel statistics channels back-end B relies on for CPU
// MHz, idle/kernel/user counters, and per-process CPU percentage.
func kstatRaw(args ...string) string {
	out, err := exec.Command("kstat", "-p", strings.Join(args, ":")).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func kstatString(module, instance, name, stat string) string {
	out := kstatRaw(module, instance, name, stat)
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func kstatInt(module, instance, name, stat string) int {
	v, _ := strconv.Atoi(kstatString(module, instance, name, stat))
	return v
}

func kstatUptimeDays() int {
	out, err := exec.Command("kstat", "-p", "unix:0:system_misc:boot_time").Output()
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0
	}
	boot, _ := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if boot == 0 {
		return 0
	}
	return int(time.Since(time.Unix(boot, 0)).Hours()) / 24
}

func kstatMainMemory() (totalKB, usedKB uint64) {
	out, err := exec.Command("kstat", "-p", "unix:0:system_pages").Output()
	if err != nil {
		return 0, 0
	}
	var physMem, freeMem uint64
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch {
		case strings.HasSuffix(fields[0], ":physmem"):
			physMem, _ = strconv.ParseUint(fields[1], 10, 64)
		case strings.HasSuffix(fields[0], ":freemem"):
			freeMem, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	const pageKB = 4
	totalKB = physMem * pageKB
	usedKB = (physMem - freeMem) * pageKB
	return totalKB, usedKB
}

// swapTotals shells out to swap -s, the conventional swap control table
// gateway on Solaris-derived systems.
func swapTotals() (totalMB, usedMB uint64) {
	out, err := exec.Command("swap", "-s").Output()
	if err != nil {
		return 0, 0
	}
	// "total: 123456k bytes allocated + 7890k reserved = 131346k used, 2000000k available"
	fields := strings.Fields(string(out))
	var usedK, availK uint64
	for i, f := range fields {
		if f == "used," && i > 0 {
			usedK, _ = strconv.ParseUint(strings.TrimSuffix(fields[i-1], "k"), 10, 64)
		}
		if f == "available" && i > 0 {
			availK, _ = strconv.ParseUint(strings.TrimSuffix(fields[i-1], "k"), 10, 64)
		}
	}
	usedMB = usedK / 1024
	totalMB = (usedK + availK) / 1024
	return totalMB, usedMB
}

func kstatProcessPctCPU(pid int) float64 {
	out, err := exec.Command("kstat", "-p", fmt.Sprintf("unix:%d:lwp:pctcpu", pid)).Output()
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0
	}
	raw, _ := strconv.ParseUint(fields[len(fields)-1], 10, 64)
	return float64(raw) / 65536.0 * 100
}

func diskUsage() map[string]int {
	out, err := exec.Command("df", "-k").Output()
	if err != nil {
		return nil
	}
	usage := make(map[string]int)
	lines := strings.Split(string(out), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		mount := fields[len(fields)-1]
		if strings.Contains(strings.ToLower(mount), "cdrom") {
			continue
		}
		pctStr := strings.TrimSuffix(fields[len(fields)-2], "%")
		pct, err := strconv.Atoi(pctStr)
		if err != nil {
			continue
		}
		usage[mount] = pct
	}
	return usage
}
