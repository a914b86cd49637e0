// Package alarm implements the alarm evaluator and notifier (C8): the
// fixed-order alarm text construction of §4.6, edge detection built on
// internal/registry's two-field AlarmEdge state, and fan-out to the
// chat/email/pager/script notification sinks.
package alarm

import (
	"fmt"
	"strings"
	"time"

	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

func appendCondition(alarm, condition string) string {
	if condition == "" {
		return alarm
	}
	if alarm == "" {
		return condition
	}
	return alarm + "," + condition
}

// EvaluateHost recomputes a host's alarm text from a fresh system sample
// against its loaded thresholds, in the fixed order required by §4.6.
// It returns the alarm text and whether the swap condition (the only
// host-level condition that sets the page flag) triggered.
func EvaluateHost(s wire.SystemSample, th registry.HostThresholds) (alarmText string, page bool) {
	if th.MaxProcesses > 0 && s.Procs > th.MaxProcesses {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%d processes are running which is more than the maximum %d processes", s.Procs, th.MaxProcesses))
	}

	if th.MaxCPUPercent > 0 && s.CPUPercent > th.MaxCPUPercent {
		cond := fmt.Sprintf("using %s%% CPU which is more than the maximum %s%%",
			trimFloat(s.CPUPercent), trimFloat(th.MaxCPUPercent))
		if len(s.Top5) > 0 {
			cond += " --- (" + formatTop5(s.Top5) + ")"
		}
		alarmText = appendCondition(alarmText, cond)
	}

	if th.MaxMainPercent > 0 && s.MainTotal > 0 {
		pct := s.MainUsed * 100 / s.MainTotal
		if int(pct) >= th.MaxMainPercent {
			alarmText = appendCondition(alarmText, fmt.Sprintf(
				"using %d%% main memory which is more than the maximum %d%%", pct, th.MaxMainPercent))
		}
	}

	if th.MaxSwapPercent > 0 && s.SwapTotal > 0 {
		pct := s.SwapUsed * 100 / s.SwapTotal
		if int(pct) >= th.MaxSwapPercent {
			alarmText = appendCondition(alarmText, fmt.Sprintf(
				"using %d%% swap memory which is more than the maximum %d%%", pct, th.MaxSwapPercent))
			page = true
		}
	}

	if th.MaxDiskPercent > 0 {
		for _, mount := range sortedMounts(s.Partitions) {
			if strings.Contains(strings.ToLower(mount), "cdrom") {
				continue
			}
			pct := s.Partitions[mount]
			if pct >= th.MaxDiskPercent {
				alarmText = appendCondition(alarmText, fmt.Sprintf(
					"%s partition is %d%% filled which is more than the maximum %d%%", mount, pct, th.MaxDiskPercent))
			}
		}
	}

	return alarmText, page
}

// EvaluateProcess recomputes a process's alarm text from a fresh process
// sample against its loaded thresholds, updating the "first observed
// zero" timestamp used for delayed not-running alarms (§4.6, S4).
func EvaluateProcess(name string, s wire.ProcessSample, th registry.ProcessThresholds, firstZero time.Time, now time.Time) (alarmText string, page bool, newFirstZero time.Time) {
	newFirstZero = firstZero

	if s.Procs <= 0 {
		if newFirstZero.IsZero() {
			newFirstZero = now
		}
		delay := time.Duration(th.DelaySeconds) * time.Second
		if th.DelaySeconds <= 0 || now.Sub(newFirstZero) >= delay {
			return fmt.Sprintf("%s is not currently running", name), true, newFirstZero
		}
		return "", false, newFirstZero
	}

	newFirstZero = time.Time{}

	if th.Owner != "" {
		if _, ok := s.Owners[th.Owner]; !ok {
			return fmt.Sprintf("%s is not running under the required %s account", name, th.Owner), true, newFirstZero
		}
	}

	if th.MinProcesses > 0 && s.Procs < th.MinProcesses {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%s is running %d processes which is less than the minimum %d processes", name, s.Procs, th.MinProcesses))
	} else if th.MaxProcesses > 0 && s.Procs > th.MaxProcesses {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%s is running %d processes which is more than the maximum %d processes", name, s.Procs, th.MaxProcesses))
	}

	if th.MinImageKB > 0 && s.Image < th.MinImageKB {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%s has an image size of %dKB which is less than the minimum %dKB", name, s.Image, th.MinImageKB))
	}
	if th.MaxImageKB > 0 && s.Image > th.MaxImageKB {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%s has an image size of %dKB which is more than the maximum %dKB", name, s.Image, th.MaxImageKB))
	}
	if th.MinResidentKB > 0 && s.Resident < th.MinResidentKB {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%s has a resident size of %dKB which is less than the minimum %dKB", name, s.Resident, th.MinResidentKB))
	}
	if th.MaxResidentKB > 0 && s.Resident > th.MaxResidentKB {
		alarmText = appendCondition(alarmText, fmt.Sprintf(
			"%s has a resident size of %dKB which is more than the maximum %dKB", name, s.Resident, th.MaxResidentKB))
	}

	return alarmText, page, newFirstZero
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

func formatTop5(shares []wire.CPUShare) string {
	parts := make([]string, len(shares))
	for i, s := range shares {
		parts[i] = fmt.Sprintf("%s=%s", s.Name, trimFloat(s.Percent))
	}
	return strings.Join(parts, ",")
}

func sortedMounts(partitions map[string]int) []string {
	mounts := make([]string, 0, len(partitions))
	for m := range partitions {
		mounts = append(mounts, m)
	}
	// Stable, deterministic ordering for alarm text construction and tests.
	for i := 1; i < len(mounts); i++ {
		for j := i; j > 0 && mounts[j] < mounts[j-1]; j-- {
			mounts[j], mounts[j-1] = mounts[j-1], mounts[j]
		}
	}
	return mounts
}
