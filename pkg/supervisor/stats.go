package supervisor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ProcStat is a point-in-time resource snapshot of a game process.
type ProcStat struct {
	SessionId  string  `json:"sessionId"`
	Pid        int     `json:"pid"`
	CpuPercent float64 `json:"cpuPercent"`
	RssBytes   uint64  `json:"rssBytes"`
}

// ProcessStats samples CPU/RSS of the running game processes.
// Mock instances have no process and are skipped.
func (s *Supervisor) ProcessStats() []ProcStat {
	type ref struct {
		id  string
		pid int
	}
	s.mu.Lock()
	refs := make([]ref, 0, len(s.instances))
	for id, inst := range s.instances {
		if pid := inst.gamePid(); pid > 0 {
			refs = append(refs, ref{id: id, pid: pid})
		}
	}
	s.mu.Unlock()

	stats := make([]ProcStat, 0, len(refs))
	for _, r := range refs {
		p, err := process.NewProcess(int32(r.pid))
		if err != nil {
			continue
		}
		stat := ProcStat{SessionId: r.id, Pid: r.pid}
		if cpu, err := p.CPUPercent(); err == nil {
			stat.CpuPercent = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			stat.RssBytes = mem.RSS
		}
		stats = append(stats, stat)
	}
	return stats
}
