package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// ProcessTable inspects the host process table through gopsutil.
type ProcessTable struct {
	self int32
}

// NewProcessTable returns an inspector that never reports the calling
// process from FindByExecutable.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{self: int32(os.Getpid())}
}

func (t *ProcessTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

func (t *ProcessTable) Describe(pid int) (domain.ProcessInfo, error) {
	if !t.Alive(pid) {
		return domain.ProcessInfo{}, fmt.Errorf("process %d is not running", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return domain.ProcessInfo{}, err
	}
	return describe(p)
}

// FindByExecutable matches the executable base name exactly, so
// "feedbackd" does not match "feedbackd-helper".
func (t *ProcessTable) FindByExecutable(name string) ([]domain.ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []domain.ProcessInfo
	for _, p := range procs {
		if p.Pid == t.self {
			continue
		}
		pname, err := p.Name()
		if err != nil || pname != name {
			continue
		}
		info, err := describe(p)
		if err != nil {
			continue // exited between listing and inspection
		}
		found = append(found, info)
	}
	return found, nil
}

func describe(p *process.Process) (domain.ProcessInfo, error) {
	name, err := p.Name()
	if err != nil {
		return domain.ProcessInfo{}, err
	}
	info := domain.ProcessInfo{PID: int(p.Pid), Name: name}
	if args, err := p.CmdlineSlice(); err == nil {
		info.Cmdline = strings.Join(args, " ")
	}
	if ms, err := p.CreateTime(); err == nil {
		info.StartedAt = time.UnixMilli(ms)
	}
	return info, nil
}

var _ domain.ProcessInspector = (*ProcessTable)(nil)
