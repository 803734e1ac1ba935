//go:build !windows

package spawn

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/Paintersrp/portexec/internal/cmdline"
)

// terminateSignal asks a child to shut down.
var terminateSignal os.Signal = syscall.SIGTERM

func configurePlatform(cmd *exec.Cmd, cl cmdline.CommandLine) {}

func exitSignal(state *os.ProcessState) string {
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return status.Signal().String()
}
