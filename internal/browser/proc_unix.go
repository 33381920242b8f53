//go:build !windows

package browser

import (
	"os/exec"
	"syscall"
)

// detachBrowser starts Chrome in its own process group and without a parent
// death signal, so a visible window outlives the run and ignores the
// terminal's Ctrl+C.
func detachBrowser(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
