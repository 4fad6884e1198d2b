package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/thermawatch/agent/pkg/types"
)

// Desktop shows alerts as desktop notifications using whatever the host OS
// provides: notify-send on Linux, osascript on macOS.
type Desktop struct {
	run func(ctx context.Context, name string, args ...string) error
}

// NewDesktop builds a desktop notifier.
func NewDesktop() *Desktop {
	return &Desktop{run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Send(ctx context.Context, ev types.AlertEvent) error {
	title := "Temperature alert"
	if ev.Kind == types.AlertRecovery {
		title = "Temperature recovered"
	}
	switch runtime.GOOS {
	case "linux":
		urgency := "critical"
		if ev.Kind == types.AlertRecovery {
			urgency = "normal"
		}
		return d.run(ctx, "notify-send", "--urgency", urgency, title, ev.Message)
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", ev.Message, title)
		return d.run(ctx, "osascript", "-e", script)
	default:
		return fmt.Errorf("desktop notifications not supported on %s", runtime.GOOS)
	}
}
