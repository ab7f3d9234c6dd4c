package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/miradorstack/graviton-inventory/internal/models"
)

// NativeProcessLister lists local processes without shelling out to ps.
type NativeProcessLister struct{}

// ListProcesses returns one "pid cmdline" line per visible process.
func (NativeProcessLister) ListProcesses(ctx context.Context) (string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}

	var b strings.Builder
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			name, nameErr := p.NameWithContext(ctx)
			if nameErr != nil {
				continue
			}
			cmdline = name
		}
		fmt.Fprintf(&b, "%d %s\n", p.Pid, cmdline)
	}
	return b.String(), nil
}

// NativeHostInspector reads facts about the local host.
type NativeHostInspector struct{}

// HostFacts returns hostname, OS, platform and kernel architecture.
func (NativeHostInspector) HostFacts(ctx context.Context) (models.HostFacts, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return models.HostFacts{}, fmt.Errorf("host info: %w", err)
	}
	return models.HostFacts{
		Hostname:   info.Hostname,
		OS:         info.OS,
		Platform:   info.Platform,
		KernelArch: info.KernelArch,
	}, nil
}
