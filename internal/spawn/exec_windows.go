//go:build windows

package spawn

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/Paintersrp/portexec/internal/cmdline"
)

// Console interrupts cannot be delivered to another process, so Stop falls
// back to killing the child immediately.
var terminateSignal os.Signal = os.Interrupt

// configurePlatform hands wrapped batch invocations to the interpreter as a
// prebuilt command line; Go's argv quoting would break the interpreter's
// escapes.
func configurePlatform(cmd *exec.Cmd, cl cmdline.CommandLine) {
	if !cl.Verbatim {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: cl.InterpreterLine()}
}

func exitSignal(*os.ProcessState) string { return "" }
