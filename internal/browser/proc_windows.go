//go:build windows

package browser

import (
	"os/exec"
	"syscall"
)

// detachBrowser starts Chrome in its own process group so a visible window
// outlives the run and ignores the console's Ctrl+C.
func detachBrowser(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
