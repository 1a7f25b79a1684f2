package config

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// selfProcessName is the process the original implementation's
// get_svchost_pids() filters out: WinRM and PowerShell ETW activity is
// frequently reported as originating from a generic svchost.exe host
// process rather than the real remote-session process, so every running
// instance is excluded to avoid the capture pipeline self-reporting on
// its own host process's traffic.
const selfProcessName = "svchost.exe"

// ExcludePIDs enumerates the PIDs of all running svchost.exe processes,
// matching get_svchost_pids() in the original implementation. No direct
// equivalent to Python's psutil exists in the teacher repo or the wider
// example pack (only manifest-only github.com/shirou/gopsutil/v3
// references appear in other_examples/manifests), so gopsutil is adopted
// here as the idiomatic ecosystem analogue for process enumeration.
func ExcludePIDs() ([]uint32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	var pids []uint32
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Processes can exit between enumeration and name lookup;
			// skip rather than fail the whole scan.
			continue
		}
		if name == selfProcessName {
			pids = append(pids, uint32(p.Pid))
		}
	}
	return pids, nil
}

// ExcludePIDsWith builds the combined exclusion list used by a trace
// session: every running svchost.exe PID plus any operator-configured
// extras from Config.ExtraExcludePIDs.
func (c *Config) ExcludePIDsWith() ([]uint32, error) {
	pids, err := ExcludePIDs()
	if err != nil {
		return nil, err
	}
	return append(pids, c.ExtraExcludePIDs...), nil
}
