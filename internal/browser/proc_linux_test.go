//go:build linux

package browser

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetachBrowser_NoParentDeathSignal(t *testing.T) {
	cmd := exec.Command("chrome")
	detachBrowser(cmd)

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
	assert.Zero(t, cmd.SysProcAttr.Pdeathsig, "Chrome must survive the exit of whatsapp-chatter")
}
