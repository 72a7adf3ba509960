// pattern: Imperative Shell

package process

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Entry is one row of the system process table.
type Entry struct {
	PID     int
	Command string // full command line
}

// List returns the system process table (pid + full command line).
// Returns nil if the process listing tool fails.
func List() []Entry {
	cmd := exec.Command("ps", "-axo", "pid=,command=")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}
	return parseProcessTable(string(output))
}

// FindByCommand returns the PIDs of processes whose command line contains
// the given substring. Matching happens in-process, so the listing tool
// itself never shows up as a match the way a shell grep would.
func FindByCommand(substr string) []int {
	var pids []int
	for _, e := range List() {
		if strings.Contains(e.Command, substr) {
			pids = append(pids, e.PID)
		}
	}
	return pids
}

// parseProcessTable parses `ps -axo pid=,command=` output.
func parseProcessTable(output string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{PID: pid, Command: strings.TrimSpace(fields[1])})
	}
	return entries
}

// Cwd returns the working directory of a process, or "" if it cannot be
// determined. Uses file-descriptor introspection via lsof.
func Cwd(pid int) string {
	return CwdBatch([]int{pid})[pid]
}

// CwdBatch resolves working directories for several PIDs with a single
// lsof invocation. PIDs whose cwd cannot be determined are absent from
// the result.
func CwdBatch(pids []int) map[int]string {
	if len(pids) == 0 {
		return nil
	}

	strs := make([]string, len(pids))
	for i, pid := range pids {
		strs[i] = strconv.Itoa(pid)
	}

	cmd := exec.Command("lsof", "-a", "-d", "cwd", "-p", strings.Join(strs, ","), "-Fn")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}
	return parseCwdOutput(string(output))
}

// parseCwdOutput parses `lsof -Fn` field output: a "p<pid>" line starts a
// process block, an "n<path>" line carries the cwd path.
func parseCwdOutput(output string) map[int]string {
	cwds := make(map[int]string)
	pid := 0
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			pid, _ = strconv.Atoi(line[1:])
		case 'n':
			if pid != 0 {
				cwds[pid] = line[1:]
			}
		}
	}
	return cwds
}

// StartTime returns when a process started, or the zero time if the
// lookup fails.
func StartTime(pid int) time.Time {
	cmd := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "lstart=")
	output, err := cmd.Output()
	if err != nil {
		return time.Time{}
	}

	// lstart format: "Mon Jan  2 15:04:05 2006". The day of month may be
	// single- or double-space padded depending on the platform.
	timeStr := strings.TrimSpace(string(output))
	t, err := time.Parse("Mon Jan  2 15:04:05 2006", timeStr)
	if err != nil {
		t, err = time.Parse("Mon Jan 2 15:04:05 2006", timeStr)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// Command returns the full command line of a process, or "".
func Command(pid int) string {
	cmd := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "command=")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// IsRunning reports whether a process with the given PID exists.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 checks existence without delivering anything. EPERM means
	// the process exists but belongs to another user.
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
