package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// browserProcessNames are executable name fragments treated as Chromium-family browsers.
var browserProcessNames = []string{"chrome", "chromium", "msedge", "headless_shell"}

// ProcFinder scans the operating system process table for a browser whose
// command line enables remote debugging on a given port.
type ProcFinder struct{}

// NewProcFinder creates a process finder.
func NewProcFinder() *ProcFinder {
	return &ProcFinder{}
}

// FindDebugListener returns the pid of the first browser process started with
// --remote-debugging-port=<port>. Processes that vanish or deny access while
// being inspected are skipped.
func (f *ProcFinder) FindDebugListener(ctx context.Context, port int) (int32, bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !isBrowserProcess(name) {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			continue
		}
		if hasDebugPort(args, port) {
			return p.Pid, true, nil
		}
	}
	return 0, false, nil
}

func isBrowserProcess(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	for _, candidate := range browserProcessNames {
		if strings.Contains(base, candidate) {
			return true
		}
	}
	return false
}

func hasDebugPort(args []string, port int) bool {
	flag := fmt.Sprintf("--remote-debugging-port=%d", port)
	for _, arg := range args {
		for rest := arg; ; {
			i := strings.Index(rest, flag)
			if i < 0 {
				break
			}
			rest = rest[i+len(flag):]
			if rest == "" || !isDigit(rest[0]) {
				return true
			}
		}
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
