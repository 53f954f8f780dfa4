package backend

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// FindNewestProcess resolves a process name to a pid. When several
// processes match, the most recently started one wins.
func FindNewestProcess(name string) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, err
	}
	var (
		bestPid    int32 = -1
		bestCreate int64 = -1
	)
	for _, p := range procs {
		pn, err := p.Name()
		if err != nil || pn != name {
			continue
		}
		created, err := p.CreateTime()
		if err != nil {
			created = 0
		}
		if created > bestCreate || (created == bestCreate && p.Pid > bestPid) {
			bestPid, bestCreate = p.Pid, created
		}
	}
	if bestPid < 0 {
		return 0, fmt.Errorf("no process named %q", name)
	}
	return int(bestPid), nil
}
